package startup

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/campuschat/internal/model"
)

// UserWriter принимает записи справочника пользователей (реализуют оба хранилища).
type UserWriter interface {
	UpsertUser(ctx context.Context, u *model.User) error
}

type seedFile struct {
	Users []model.User `yaml:"users"`
}

// ParseSeed читает YAML вида `users: [{id, first_name, role, ...}]`.
func ParseSeed(r io.Reader) ([]model.User, error) {
	var sf seedFile
	if err := yaml.NewDecoder(r).Decode(&sf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("seed decode: %w", err)
	}
	for i, u := range sf.Users {
		if strings.TrimSpace(u.ID) == "" {
			return nil, fmt.Errorf("seed user #%d: id is required", i)
		}
		if !u.Role.Valid() {
			return nil, fmt.Errorf("seed user %s: invalid role %q", u.ID, u.Role)
		}
	}
	return sf.Users, nil
}

// LoadSeed записывает в w пользователей из YAML-файла path.
func LoadSeed(ctx context.Context, path string, w UserWriter) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("seed open: %w", err)
	}
	defer f.Close()
	users, err := ParseSeed(f)
	if err != nil {
		return 0, err
	}
	for i := range users {
		if err := w.UpsertUser(ctx, &users[i]); err != nil {
			return i, fmt.Errorf("seed upsert %s: %w", users[i].ID, err)
		}
	}
	return len(users), nil
}
