package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRoleCreated = "role.created"
	EventTypeRoleUpdated = "role.updated"
	EventTypeRoleDeleted = "role.deleted"

	EventTypeUserCreated       = "user.created"
	EventTypeUserUpdated       = "user.updated"
	EventTypeUserDeleted       = "user.deleted"
	EventTypeUserRestricted    = "user.restricted"
	EventTypeUserStatusToggled = "user.status_toggled"
	EventTypeUserAvatarUpdated = "user.avatar_updated"

	EventTypeTemplateCreated = "settings_template.created"
	EventTypeTemplateUpdated = "settings_template.updated"
	EventTypeTemplateDeleted = "settings_template.deleted"
	EventTypeSettingsUpdated = "settings.updated"

	EventTypeUserLoggedIn = "auth.logged_in"
)

// AuditedEventTypes is every event the audit subscriber listens to.
var AuditedEventTypes = []string{
	EventTypeRoleCreated,
	EventTypeRoleUpdated,
	EventTypeRoleDeleted,
	EventTypeUserCreated,
	EventTypeUserUpdated,
	EventTypeUserDeleted,
	EventTypeUserRestricted,
	EventTypeUserStatusToggled,
	EventTypeUserAvatarUpdated,
	EventTypeTemplateCreated,
	EventTypeTemplateUpdated,
	EventTypeTemplateDeleted,
	EventTypeSettingsUpdated,
	EventTypeUserLoggedIn,
}

// DomainEvent records that ActorID did something to SubjectID.
type DomainEvent struct {
	BaseEvent
	ActorID   uuid.UUID `json:"actor_id"`
	SubjectID uuid.UUID `json:"subject_id"`
}

func NewDomainEvent(eventType string, actorID, subjectID uuid.UUID, data map[string]interface{}) *DomainEvent {
	payload := map[string]interface{}{
		"actor_id":   actorID.String(),
		"subject_id": subjectID.String(),
	}
	for k, v := range data {
		payload[k] = v
	}
	return &DomainEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      payload,
		},
		ActorID:   actorID,
		SubjectID: subjectID,
	}
}
