package cockroach

import "chatcore-backend/internal/repository"

var (
	_ repository.UserRepository         = (*UserRepository)(nil)
	_ repository.ConversationRepository = (*ConversationRepository)(nil)
	_ repository.MessageRepository      = (*MessageRepository)(nil)
	_ repository.ReceiptRepository      = (*ReceiptRepository)(nil)
)
