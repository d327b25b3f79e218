package logger

import (
	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/model"
)

const (
	// FieldChatID is the structured log field key for the external chat id.
	FieldChatID = "chat_id"
	// FieldMessageID is the structured log field key for the external message id.
	FieldMessageID = "message_id"
	// FieldVacancyID is the structured log field key for the stored vacancy id.
	FieldVacancyID = "vacancy_id"
	// FieldVacancyTitle is the structured log field key for the vacancy title.
	FieldVacancyTitle = "vacancy_title"
	// FieldScore is the structured log field key for the vacancy score.
	FieldScore = "score"
	// FieldHandle is the structured log field key for a recruiter handle.
	FieldHandle = "handle"
)

// WithFields safely attaches the provided fields to the logger.
// If the logger is nil or no fields are supplied, the input logger is returned
// unchanged, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// MessageFields describes an inbound message.
func MessageFields(msg model.InboundMessage) []zap.Field {
	return []zap.Field{
		zap.Int64(FieldChatID, msg.ChatID),
		zap.Int64(FieldMessageID, msg.ID),
	}
}

// VacancyFields describes a stored vacancy. A nil vacancy yields no fields.
func VacancyFields(v *model.Vacancy) []zap.Field {
	if v == nil {
		return nil
	}

	return []zap.Field{
		zap.Int64(FieldVacancyID, v.ID),
		zap.String(FieldVacancyTitle, v.Title),
		zap.Int(FieldScore, v.Score),
	}
}
