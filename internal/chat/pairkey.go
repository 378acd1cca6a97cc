package chat

import "github.com/campuschat/internal/model"

// PairKeyFor fixes the student and teacher slots for a conversation between sender and
// receiver. The result does not depend on who sends: PairKeyFor(a, b) == PairKeyFor(b, a).
func PairKeyFor(senderRole model.Role, senderID string, receiverRole model.Role, receiverID string) (model.PairKey, error) {
	const op = "chat.PairKeyFor"
	if !senderRole.Valid() || !receiverRole.Valid() {
		return model.PairKey{}, validationError(op, "Unknown user role")
	}
	if senderRole == receiverRole {
		return model.PairKey{}, validationError(op, "Conversations are between a student and a teacher")
	}
	if senderRole == model.RoleStudent {
		return model.PairKey{StudentID: senderID, TeacherID: receiverID}, nil
	}
	return model.PairKey{StudentID: receiverID, TeacherID: senderID}, nil
}

func pairKeyOf(a, b *model.User) (model.PairKey, error) {
	return PairKeyFor(a.Role, a.ID, b.Role, b.ID)
}
