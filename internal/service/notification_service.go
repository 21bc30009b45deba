package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"haven/internal/domain"
	"haven/internal/events"
	"haven/internal/models"
	"haven/internal/repository"
)

// NotificationService stores in-app notifications and pushes them to devices.
// It consumes session events; nothing it does can affect a session.
type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	push     Pusher
}

func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, push Pusher) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, push: push}
}

func (s *NotificationService) Notify(ctx context.Context, userID uint, sessionID *uint, notifType, title, body string, data map[string]interface{}) error {
	var dataJSON string
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		dataJSON = string(b)
	}
	err := s.repo.Create(ctx, &models.Notification{
		UserID:    userID,
		SessionID: sessionID,
		Type:      notifType,
		Title:     title,
		Body:      body,
		Data:      dataJSON,
	})
	if err != nil {
		return err
	}
	s.sendPush(ctx, userID, notifType, title, body, data)
	return nil
}

func (s *NotificationService) sendPush(ctx context.Context, userID uint, notifType, title, body string, data map[string]interface{}) {
	if s.push == nil || s.userRepo == nil {
		return
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u.FCMToken == "" {
		return
	}
	if err := s.push.Push(ctx, u.FCMToken, notifType, title, body, data); err != nil {
		log.Printf("[Notify] push to user=%d failed: %v", userID, err)
	}
}

// HandleEvent is the events.Handler for session lifecycle events.
func (s *NotificationService) HandleEvent(ctx context.Context, e events.Event) error {
	sid := e.SessionID
	data := map[string]interface{}{"session_id": e.SessionID, "status": e.Status}
	switch e.Type {
	case events.SessionCreated:
		if e.VolunteerID == nil {
			return s.Notify(ctx, e.SeekerID, &sid, domain.NotificationSessionCreated, "Looking for a listener",
				"Your session is waiting for the next available volunteer.", data)
		}
		if err := s.Notify(ctx, *e.VolunteerID, &sid, domain.NotificationSessionCreated, "New session",
			"A seeker has been matched with you.", data); err != nil {
			return err
		}
		return s.Notify(ctx, e.SeekerID, &sid, domain.NotificationVolunteerAssigned, "Listener found",
			"A volunteer has joined your session.", data)
	case events.VolunteerAssigned:
		return s.Notify(ctx, e.SeekerID, &sid, domain.NotificationVolunteerAssigned, "Listener found",
			"A volunteer has joined your session.", data)
	case events.SessionEnded:
		for k, v := range e.Data {
			data[k] = v
		}
		var firstErr error
		for _, uid := range e.Recipients() {
			body := "Your session has ended."
			if e.VolunteerID != nil && uid == *e.VolunteerID {
				body = fmt.Sprintf("Session ended. You earned %v points.", e.Data["reward_points"])
			}
			if err := s.Notify(ctx, uid, &sid, domain.NotificationSessionEnded, "Session ended", body, data); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return nil
}

type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int64                 `json:"unread"`
}

func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) (*NotificationPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	list, err := s.repo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &NotificationPage{Notifications: list, Unread: unread}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	err := s.repo.MarkRead(ctx, id, userID, time.Now())
	if err != nil {
		return mapRepoErr(err)
	}
	return nil
}
