package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
	"google.golang.org/api/iterator"
)

// storyDoc is the Firestore document representation of model.Story.
// Embedding is stored as firestore.Vector32 so that FindNearest vector search works.
// Timeline is stored as bytes to keep the extractor output unchanged.
type storyDoc struct {
	ID        string             `firestore:"ID"`
	UserID    string             `firestore:"UserID"`
	Title     string             `firestore:"Title"`
	RawText   string             `firestore:"RawText"`
	Timeline  []byte             `firestore:"Timeline"`
	Embedding firestore.Vector32 `firestore:"Embedding,omitempty"`
	CreatedAt time.Time          `firestore:"CreatedAt"`
	UpdatedAt time.Time          `firestore:"UpdatedAt"`
}

func toStoryDoc(s *model.Story) *storyDoc {
	doc := &storyDoc{
		ID:        s.ID.String(),
		UserID:    s.UserID.String(),
		Title:     s.Title,
		RawText:   s.RawText,
		Timeline:  []byte(s.Timeline),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if len(s.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(s.Embedding)
	}
	return doc
}

func fromStoryDoc(d *storyDoc) *model.Story {
	s := &model.Story{
		ID:        model.StoryID(d.ID),
		UserID:    model.UserID(d.UserID),
		Title:     d.Title,
		RawText:   d.RawText,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.Timeline != nil {
		s.Timeline = model.Timeline(d.Timeline)
	}
	if len(d.Embedding) > 0 {
		s.Embedding = []float32(d.Embedding)
	}
	return s
}

func docToStory(doc *firestore.DocumentSnapshot) (*model.Story, error) {
	var d storyDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return fromStoryDoc(&d), nil
}

type storyRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newStoryRepository(client *firestore.Client) *storyRepository {
	return &storyRepository{
		client: client,
	}
}

func (r *storyRepository) stories() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + StoriesCollection)
}

func (r *storyRepository) Create(ctx context.Context, story *model.Story) (*model.Story, error) {
	if story.UserID == "" {
		return nil, goerr.New("user ID is required")
	}

	created := story.Copy()
	if created.ID == "" {
		created.ID = model.NewStoryID()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	// Create fails instead of overwriting an existing document
	if _, err := r.stories().Doc(created.ID.String()).Create(ctx, toStoryDoc(created)); err != nil {
		if isAlreadyExists(err) {
			return nil, goerr.Wrap(interfaces.ErrConflict, "story already exists", goerr.V("id", created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create story", goerr.V("id", created.ID))
	}

	return created, nil
}

func (r *storyRepository) Get(ctx context.Context, id model.StoryID) (*model.Story, error) {
	doc, err := r.stories().Doc(id.String()).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "story not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get story", goerr.V("id", id))
	}

	s, err := docToStory(doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal story", goerr.V("id", id))
	}
	return s, nil
}

func (r *storyRepository) ListByUser(ctx context.Context, userID model.UserID) ([]*model.Story, error) {
	iter := r.stories().
		Where("UserID", "==", userID.String()).
		OrderBy("CreatedAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	stories := make([]*model.Story, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate stories", goerr.V("userID", userID))
		}

		s, err := docToStory(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal story")
		}
		stories = append(stories, s)
	}

	return stories, nil
}

func (r *storyRepository) UpdateRawText(ctx context.Context, id model.StoryID, rawText string) (*model.Story, error) {
	return r.update(ctx, id, []firestore.Update{
		{Path: "RawText", Value: rawText},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
}

func (r *storyRepository) Replace(ctx context.Context, id model.StoryID, rawText string, artifacts *model.Artifacts) (*model.Story, error) {
	var embedding firestore.Vector32
	if len(artifacts.Embedding) > 0 {
		embedding = firestore.Vector32(artifacts.Embedding)
	}

	// A single Update call writes every field atomically
	return r.update(ctx, id, []firestore.Update{
		{Path: "RawText", Value: rawText},
		{Path: "Title", Value: artifacts.Title},
		{Path: "Timeline", Value: []byte(artifacts.Timeline)},
		{Path: "Embedding", Value: embedding},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
}

func (r *storyRepository) update(ctx context.Context, id model.StoryID, updates []firestore.Update) (*model.Story, error) {
	docRef := r.stories().Doc(id.String())
	if _, err := docRef.Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "story not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to update story", goerr.V("id", id))
	}

	return r.Get(ctx, id)
}

func (r *storyRepository) DeleteByUser(ctx context.Context, userID model.UserID) (int, error) {
	docs, err := r.stories().Where("UserID", "==", userID.String()).Documents(ctx).GetAll()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list stories for deletion", goerr.V("userID", userID))
	}
	if len(docs) == 0 {
		return 0, nil
	}

	// BulkWriter handles the Firestore batch write limits internally
	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, doc := range docs {
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return 0, goerr.Wrap(err, "failed to enqueue story deletion", goerr.V("id", doc.Ref.ID))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	deleted := 0
	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return deleted, goerr.Wrap(err, "failed to delete story", goerr.V("id", docs[i].Ref.ID))
		}
		deleted++
	}

	return deleted, nil
}
