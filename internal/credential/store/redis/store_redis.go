// Package redis implements the credential stores on Redis. Consumption and
// usage tracking are Lua scripts so a credential transition is a single
// store-native operation, never a read-modify-write from the session.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ballotgate/internal/credential/models"
	"ballotgate/internal/credential/store"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

const (
	tokenKeyPrefix = "tokens/"
	linkKeyPrefix  = "voting-links/"
)

// consumeScript flips used false→true and records the consuming voter.
var consumeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local token = cjson.decode(raw)
if token['used'] == true then
  return 0
end
token['used'] = true
token['usedAt'] = ARGV[2]
local usedBy = token['usedBy']
if type(usedBy) ~= 'table' then
  usedBy = {}
end
usedBy[ARGV[1]] = ARGV[2]
token['usedBy'] = usedBy
redis.call('SET', KEYS[1], cjson.encode(token))
return 1
`)

// markUsedByScript appends to the usedBy map without touching anything else,
// so concurrent voters on a shared credential cannot clobber each other.
var markUsedByScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local rec = cjson.decode(raw)
local usedBy = rec['usedBy']
if type(usedBy) ~= 'table' then
  usedBy = {}
end
usedBy[ARGV[1]] = ARGV[2]
rec['usedBy'] = usedBy
redis.call('SET', KEYS[1], cjson.encode(rec))
return 1
`)

// setFieldScript sets one boolean field on a JSON record.
var setFieldScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local rec = cjson.decode(raw)
rec[ARGV[1]] = ARGV[2] == 'true'
redis.call('SET', KEYS[1], cjson.encode(rec))
return 1
`)

// TokenStore persists legacy tokens under tokens/{id}.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func (s *TokenStore) Save(ctx context.Context, token models.LegacyToken) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	return s.client.Set(ctx, tokenKeyPrefix+string(token.ID), raw, 0).Err()
}

func (s *TokenStore) Find(ctx context.Context, credID id.CredentialID) (models.LegacyToken, error) {
	raw, err := s.client.Get(ctx, tokenKeyPrefix+string(credID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.LegacyToken{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.LegacyToken{}, err
	}
	var token models.LegacyToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return models.LegacyToken{}, fmt.Errorf("%w: token %s: %v", sentinel.ErrCorrupt, credID, err)
	}
	return token, nil
}

func (s *TokenStore) Consume(ctx context.Context, credID id.CredentialID, voterID id.VoterID, at time.Time) error {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{tokenKeyPrefix + string(credID)},
		string(voterID), at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return err
	}
	switch res {
	case 1:
		return nil
	case 0:
		return sentinel.ErrAlreadyUsed
	default:
		return sentinel.ErrNotFound
	}
}

func (s *TokenStore) MarkUsedBy(ctx context.Context, credID id.CredentialID, voterID id.VoterID, at time.Time) error {
	return runMarkUsedBy(ctx, s.client, tokenKeyPrefix+string(credID), voterID, at)
}

func (s *TokenStore) Deactivate(ctx context.Context, credID id.CredentialID) error {
	return runSetField(ctx, s.client, tokenKeyPrefix+string(credID), "used", true)
}

// LinkStore persists unified and particular links under voting-links/{id}.
type LinkStore struct {
	client *redis.Client
}

func NewLinkStore(client *redis.Client) *LinkStore {
	return &LinkStore{client: client}
}

func (s *LinkStore) Save(ctx context.Context, link models.Link) error {
	raw, err := store.EncodeLink(link)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, linkKeyPrefix+string(link.CredentialID()), raw, 0).Err()
}

func (s *LinkStore) Find(ctx context.Context, credID id.CredentialID) (models.Link, error) {
	raw, err := s.client.Get(ctx, linkKeyPrefix+string(credID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return store.DecodeLink(raw)
}

func (s *LinkStore) MarkUsedBy(ctx context.Context, credID id.CredentialID, voterID id.VoterID, at time.Time) error {
	return runMarkUsedBy(ctx, s.client, linkKeyPrefix+string(credID), voterID, at)
}

func (s *LinkStore) Deactivate(ctx context.Context, credID id.CredentialID) error {
	return runSetField(ctx, s.client, linkKeyPrefix+string(credID), "active", false)
}

func runMarkUsedBy(ctx context.Context, client *redis.Client, key string, voterID id.VoterID, at time.Time) error {
	res, err := markUsedByScript.Run(ctx, client,
		[]string{key},
		string(voterID), at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return sentinel.ErrNotFound
	}
	return nil
}

func runSetField(ctx context.Context, client *redis.Client, key, field string, value bool) error {
	val := "false"
	if value {
		val = "true"
	}
	res, err := setFieldScript.Run(ctx, client, []string{key}, field, val).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return sentinel.ErrNotFound
	}
	return nil
}
