package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	logx "remindbot/pkg/logx"
)

// firestoreStore maps reminders to documents keyed by reminder id and
// timezones to documents keyed by user id.
type firestoreStore struct {
	client    *firestore.Client
	log       logx.Logger
	reminders string
	timezones string
}

type timezoneDoc struct {
	UserID   int64  `firestore:"user_id"`
	Timezone string `firestore:"timezone"`
}

func openFirestore(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	var opts []option.ClientOption
	if p := strings.TrimSpace(cfg.FirestoreCredentials); p != "" {
		opts = append(opts, option.WithCredentialsFile(p))
	}
	var fbCfg *firebase.Config
	if p := strings.TrimSpace(cfg.FirestoreProject); p != "" {
		fbCfg = &firebase.Config{ProjectID: p}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	log.Debug("firestore store opened", logx.String("project", cfg.FirestoreProject))
	return &firestoreStore{
		client:    client,
		log:       log,
		reminders: cfg.KeyPrefix + "reminders",
		timezones: cfg.KeyPrefix + "user_timezones",
	}, nil
}

func isNotFound(err error) bool { return status.Code(err) == codes.NotFound }

func userDocID(userID int64) string { return strconv.FormatInt(userID, 10) }

func (s *firestoreStore) PutReminder(ctx context.Context, r Reminder) error {
	if err := prepareWrite(&r); err != nil {
		return err
	}
	_, err := s.client.Collection(s.reminders).Doc(r.ID).Set(ctx, r)
	return err
}

func (s *firestoreStore) GetReminder(ctx context.Context, id string) (Reminder, bool, error) {
	snap, err := s.client.Collection(s.reminders).Doc(id).Get(ctx)
	if isNotFound(err) {
		return Reminder{}, false, nil
	}
	if err != nil {
		return Reminder{}, false, err
	}
	return s.decode(snap), true, nil
}

func (s *firestoreStore) decode(snap *firestore.DocumentSnapshot) Reminder {
	var r Reminder
	if err := snap.DataTo(&r); err != nil {
		s.log.Warn("undecodable reminder document", logx.ReminderID(snap.Ref.ID), logx.Err(err))
		return Reminder{ID: snap.Ref.ID}
	}
	if r.ID == "" {
		r.ID = snap.Ref.ID
	}
	return r
}

// deleteDoc removes a document inside a transaction so the existence check
// and the delete see the same state.
func (s *firestoreStore) deleteDoc(ctx context.Context, ref *firestore.DocumentRef) (bool, error) {
	existed := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existed = false
		if _, err := tx.Get(ref); err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		existed = true
		return tx.Delete(ref)
	})
	return existed, err
}

func (s *firestoreStore) DeleteReminder(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	return s.deleteDoc(ctx, s.client.Collection(s.reminders).Doc(id))
}

func (s *firestoreStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	it := s.client.Collection(s.reminders).Documents(ctx)
	defer it.Stop()
	var out []Reminder
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s.decode(snap))
	}
	sortReminders(out)
	return out, nil
}

func (s *firestoreStore) PutTimezone(ctx context.Context, userID int64, tz string) error {
	_, err := s.client.Collection(s.timezones).Doc(userDocID(userID)).Set(ctx, timezoneDoc{UserID: userID, Timezone: tz})
	return err
}

func (s *firestoreStore) GetTimezone(ctx context.Context, userID int64) (string, bool, error) {
	snap, err := s.client.Collection(s.timezones).Doc(userDocID(userID)).Get(ctx)
	if isNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var doc timezoneDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", false, err
	}
	return doc.Timezone, true, nil
}

func (s *firestoreStore) DeleteTimezone(ctx context.Context, userID int64) (bool, error) {
	return s.deleteDoc(ctx, s.client.Collection(s.timezones).Doc(userDocID(userID)))
}

func (s *firestoreStore) Close() error { return s.client.Close() }
