// Package board manages posts and comments, triggering point awards on
// content creation.
package board

import (
	"context"
	"strings"

	"github.com/nitemap/nitemap/internal/domain/board"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/services/points"
	"github.com/nitemap/nitemap/internal/storage"
)

// Service persists board content and applies the award side effects.
type Service struct {
	posts    storage.PostStore
	comments storage.CommentStore
	points   *points.Service
	log      *logging.Logger
}

// New creates the board service.
func New(posts storage.PostStore, comments storage.CommentStore, pts *points.Service, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{
		posts:    posts,
		comments: comments,
		points:   pts,
		log:      log.WithComponent("board"),
	}
}

// CreatePostResult carries the persisted post and the award outcome.
// Award may be zero valued when the award step failed after the post
// was stored.
type CreatePostResult struct {
	Post        board.Post
	Award       points.AwardResult
	AwardFailed bool
}

// CreatePost stores the post and credits the author. The post is
// persisted first; a failed award keeps the post and is reported on the
// result rather than unwinding the content.
func (s *Service) CreatePost(ctx context.Context, p board.Post) (CreatePostResult, error) {
	if err := validatePost(p); err != nil {
		return CreatePostResult{}, err
	}

	created, err := s.posts.CreatePost(ctx, p)
	if err != nil {
		return CreatePostResult{}, err
	}
	result := CreatePostResult{Post: created}

	award, err := s.points.AwardForPost(ctx, created.AuthorID, created.Category, created.ImageURL != "", created.ID)
	if err != nil {
		s.log.WithError(err).WithFields(map[string]any{
			"post_id":   created.ID,
			"author_id": created.AuthorID,
		}).Error("post stored but award failed")
		result.AwardFailed = true
		return result, nil
	}
	result.Award = award
	return result, nil
}

// UpdatePost edits a post. Only the author may edit.
func (s *Service) UpdatePost(ctx context.Context, actorID string, p board.Post) (board.Post, error) {
	existing, err := s.posts.GetPost(ctx, p.ID)
	if err != nil {
		return board.Post{}, err
	}
	if existing.AuthorID != actorID {
		return board.Post{}, svcerr.Forbidden("only the author can edit a post")
	}
	return s.posts.UpdatePost(ctx, p)
}

// GetPost returns one post.
func (s *Service) GetPost(ctx context.Context, id string) (board.Post, error) {
	return s.posts.GetPost(ctx, id)
}

// ListPosts lists posts, optionally filtered by category.
func (s *Service) ListPosts(ctx context.Context, category board.Category) ([]board.Post, error) {
	if category != "" && !validCategory(category) {
		return nil, svcerr.Validation("unknown post category")
	}
	return s.posts.ListPosts(ctx, category)
}

// DeletePost removes a post. The author or an admin may delete.
func (s *Service) DeletePost(ctx context.Context, actorID string, isAdmin bool, id string) error {
	existing, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if existing.AuthorID != actorID && !isAdmin {
		return svcerr.Forbidden("only the author or an admin can delete a post")
	}
	return s.posts.DeletePost(ctx, id)
}

// CreateComment stores the comment and credits the author. As with
// posts, the content survives a failed award.
func (s *Service) CreateComment(ctx context.Context, c board.Comment) (board.Comment, error) {
	if strings.TrimSpace(c.Content) == "" {
		return board.Comment{}, svcerr.Validation("comment content is required")
	}
	if _, err := s.posts.GetPost(ctx, c.PostID); err != nil {
		return board.Comment{}, err
	}

	created, err := s.comments.CreateComment(ctx, c)
	if err != nil {
		return board.Comment{}, err
	}

	if _, err := s.points.AwardForComment(ctx, created.AuthorID, created.ID); err != nil {
		s.log.WithError(err).WithFields(map[string]any{
			"comment_id": created.ID,
			"author_id":  created.AuthorID,
		}).Error("comment stored but award failed")
	}
	return created, nil
}

// ListComments lists a post's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, postID string) ([]board.Comment, error) {
	return s.comments.ListComments(ctx, postID)
}

// DeleteComment removes a comment. The author or an admin may delete.
func (s *Service) DeleteComment(ctx context.Context, actorID string, isAdmin bool, id string) error {
	existing, err := s.comments.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if existing.AuthorID != actorID && !isAdmin {
		return svcerr.Forbidden("only the author or an admin can delete a comment")
	}
	return s.comments.DeleteComment(ctx, id)
}

func validatePost(p board.Post) error {
	if strings.TrimSpace(p.Title) == "" {
		return svcerr.Validation("post title is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return svcerr.Validation("post content is required")
	}
	if !validCategory(p.Category) {
		return svcerr.Validation("unknown post category")
	}
	if p.Category == board.CategoryReview && p.VenueID == "" {
		return svcerr.Validation("review posts must reference a venue")
	}
	return nil
}

func validCategory(c board.Category) bool {
	switch c {
	case board.CategoryReview, board.CategoryFree, board.CategoryMeetup:
		return true
	}
	return false
}
