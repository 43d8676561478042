package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

// userDoc is the Firestore document representation of model.User
type userDoc struct {
	ID           string    `firestore:"ID"`
	PrincipalID  string    `firestore:"PrincipalID"`
	DisplayName  string    `firestore:"DisplayName"`
	SessionToken string    `firestore:"SessionToken"`
	CreatedAt    time.Time `firestore:"CreatedAt"`
	UpdatedAt    time.Time `firestore:"UpdatedAt"`
}

// userIndexDoc maps a unique key (principal or session token) to a user.
// Creating it fails when the key is already taken.
type userIndexDoc struct {
	UserID string `firestore:"UserID"`
}

func toUserDoc(u *model.User) *userDoc {
	return &userDoc{
		ID:           u.ID.String(),
		PrincipalID:  u.PrincipalID.String(),
		DisplayName:  u.DisplayName,
		SessionToken: u.SessionToken.String(),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func fromUserDoc(d *userDoc) *model.User {
	return &model.User{
		ID:           model.UserID(d.ID),
		PrincipalID:  model.PrincipalID(d.PrincipalID),
		DisplayName:  d.DisplayName,
		SessionToken: model.SessionToken(d.SessionToken),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type userRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newUserRepository(client *firestore.Client) *userRepository {
	return &userRepository{
		client: client,
	}
}

func (r *userRepository) users() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + UsersCollection)
}

func (r *userRepository) principals() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + PrincipalsCollection)
}

func (r *userRepository) sessions() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + SessionsCollection)
}

func (r *userRepository) GetByPrincipal(ctx context.Context, principalID model.PrincipalID) (*model.User, error) {
	user, err := r.getByIndex(ctx, r.principals().Doc(docKey(principalID.String())))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user by principal", goerr.V("principal_id", principalID))
	}
	return user, nil
}

func (r *userRepository) GetBySessionToken(ctx context.Context, token model.SessionToken) (*model.User, error) {
	user, err := r.getByIndex(ctx, r.sessions().Doc(docKey(token.String())))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user by session token")
	}
	return user, nil
}

func (r *userRepository) getByIndex(ctx context.Context, indexRef *firestore.DocumentRef) (*model.User, error) {
	indexSnap, err := indexRef.Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "user index not found")
		}
		return nil, goerr.Wrap(err, "failed to get user index")
	}

	var index userIndexDoc
	if err := indexSnap.DataTo(&index); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal user index")
	}

	userSnap, err := r.users().Doc(index.UserID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("id", index.UserID))
		}
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("id", index.UserID))
	}

	var doc userDoc
	if err := userSnap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal user", goerr.V("id", index.UserID))
	}

	return fromUserDoc(&doc), nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	if user.SessionToken == "" {
		return nil, goerr.New("session token is required")
	}

	created := user.Copy()
	if created.ID == "" {
		created.ID = model.NewUserID()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	index := &userIndexDoc{UserID: created.ID.String()}

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(r.users().Doc(created.ID.String()), toUserDoc(created)); err != nil {
			return err
		}
		if created.PrincipalID != "" {
			if err := tx.Create(r.principals().Doc(docKey(created.PrincipalID.String())), index); err != nil {
				return err
			}
		}
		return tx.Create(r.sessions().Doc(docKey(created.SessionToken.String())), index)
	})
	if err != nil {
		if isAlreadyExists(err) {
			return nil, goerr.Wrap(interfaces.ErrConflict, "user already exists",
				goerr.V("id", created.ID),
				goerr.V("principal_id", created.PrincipalID))
		}
		return nil, goerr.Wrap(err, "failed to create user", goerr.V("id", created.ID))
	}

	return created, nil
}

func (r *userRepository) Promote(ctx context.Context, id model.UserID, principalID model.PrincipalID, displayName string) (*model.User, error) {
	if principalID == "" {
		return nil, goerr.New("principal ID is required")
	}

	var promoted *model.User
	userRef := r.users().Doc(id.String())

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(userRef)
		if err != nil {
			if isNotFound(err) {
				return goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("id", id))
			}
			return goerr.Wrap(err, "failed to get user", goerr.V("id", id))
		}

		var doc userDoc
		if err := snap.DataTo(&doc); err != nil {
			return goerr.Wrap(err, "failed to unmarshal user", goerr.V("id", id))
		}
		if doc.PrincipalID != "" {
			return goerr.Wrap(interfaces.ErrConflict, "user already promoted", goerr.V("id", id))
		}

		doc.PrincipalID = principalID.String()
		if doc.DisplayName == "" {
			doc.DisplayName = displayName
		}
		doc.UpdatedAt = time.Now().UTC()

		index := &userIndexDoc{UserID: doc.ID}
		if err := tx.Create(r.principals().Doc(docKey(principalID.String())), index); err != nil {
			return err
		}
		if err := tx.Update(userRef, []firestore.Update{
			{Path: "PrincipalID", Value: doc.PrincipalID},
			{Path: "DisplayName", Value: doc.DisplayName},
			{Path: "UpdatedAt", Value: doc.UpdatedAt},
		}); err != nil {
			return err
		}

		promoted = fromUserDoc(&doc)
		return nil
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) || errors.Is(err, interfaces.ErrConflict) {
			return nil, err
		}
		if isAlreadyExists(err) {
			return nil, goerr.Wrap(interfaces.ErrConflict, "principal already linked", goerr.V("principal_id", principalID))
		}
		return nil, goerr.Wrap(err, "failed to promote user", goerr.V("id", id))
	}

	return promoted, nil
}
