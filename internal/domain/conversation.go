package domain

// ConversationKind перечисляет состояния диалога пользователя с ботом.
type ConversationKind string

const (
	ConversationIdle               ConversationKind = ""
	ConversationAwaitingSupport    ConversationKind = "awaiting_support"
	ConversationAwaitingAdminReply ConversationKind = "awaiting_admin_reply"
)

// ConversationState хранится вместе с пользователем и определяет, куда направить
// следующее текстовое сообщение.
type ConversationState struct {
	Kind   ConversationKind `json:"kind,omitempty"`
	Topic  SupportTopic     `json:"topic,omitempty"`
	Target int64            `json:"target,omitempty"`
}

// IdleState возвращает состояние без ожиданий.
func IdleState() ConversationState {
	return ConversationState{}
}

// AwaitingSupportText ждёт текст обращения по теме topic.
func AwaitingSupportText(topic SupportTopic) ConversationState {
	return ConversationState{Kind: ConversationAwaitingSupport, Topic: topic}
}

// AwaitingAdminReply ждёт от администратора ответ пользователю target.
func AwaitingAdminReply(target int64) ConversationState {
	return ConversationState{Kind: ConversationAwaitingAdminReply, Target: target}
}

// IsIdle сообщает, что бот ничего не ждёт от пользователя.
func (s ConversationState) IsIdle() bool {
	return s.Kind == ConversationIdle
}
