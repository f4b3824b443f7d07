package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/diagnosis/agency-portal/services/onboarding/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ProposalStore holds pending proposals by id. Get returns nil, nil for unknown or expired ids.
// Delete reports whether this call removed the record, which makes decisions single-use.
// Create also remembers the proposal as the open one for its submission; Revoke deletes that
// open proposal and returns its id, or "" when there is none.
type ProposalStore interface {
	Create(ctx context.Context, id string, p *domain.Proposal, ttl time.Duration) error
	Get(ctx context.Context, id string) (*domain.Proposal, error)
	Delete(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, submissionID int64) (string, error)
}

const (
	proposalPrefix   = "proposal:"
	submissionPrefix = "submission-proposal:"
)

func submissionKey(submissionID int64) string {
	return submissionPrefix + strconv.FormatInt(submissionID, 10)
}

type redisProposalStore struct {
	client *redis.Client
}

func NewRedisProposalStore(client *redis.Client) ProposalStore {
	return &redisProposalStore{client: client}
}

func (s *redisProposalStore) Create(ctx context.Context, id string, p *domain.Proposal, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ok, err := s.client.SetNX(ctx, proposalPrefix+id, raw, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("proposal %s already exists", id)
	}

	if err := s.client.Set(ctx, submissionKey(p.SubmissionID), id, ttl).Err(); err != nil {
		return fmt.Errorf("index proposal %s: %w", id, err)
	}
	return nil
}

func (s *redisProposalStore) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, proposalPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p domain.Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode proposal %s: %w", id, err)
	}
	return &p, nil
}

func (s *redisProposalStore) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	n, err := s.client.Del(ctx, proposalPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisProposalStore) Revoke(ctx context.Context, submissionID int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	id, err := s.client.GetDel(ctx, submissionKey(submissionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	n, err := s.client.Del(ctx, proposalPrefix+id).Result()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	return id, nil
}
