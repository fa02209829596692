package validator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ballotgate/internal/audit"
	"ballotgate/internal/credential/models"
	credmemory "ballotgate/internal/credential/store/memory"
	"ballotgate/internal/credential/token"
	electionmodels "ballotgate/internal/election/models"
	electionmemory "ballotgate/internal/election/store/memory"
	"ballotgate/internal/phone"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
)

// =============================================================================
// Validator Service Test Suite
// =============================================================================
// Each credential shape has its own check ordering and identity rules, so the
// rejection taxonomy is exercised per shape against in-memory stores.

type ValidatorSuite struct {
	suite.Suite
	tokens     *credmemory.TokenStore
	links      *credmemory.LinkStore
	voters     *electionmemory.VoterStore
	categories *electionmemory.CategoryStore
	candidates *electionmemory.CandidateStore
	codec      *token.Codec
	auditStore *audit.InMemoryStore
	service    *Service
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	s.tokens = credmemory.NewTokenStore()
	s.links = credmemory.NewLinkStore()
	s.voters = electionmemory.NewVoterStore()
	s.categories = electionmemory.NewCategoryStore()
	s.candidates = electionmemory.NewCandidateStore()
	s.auditStore = audit.NewInMemoryStore()

	var err error
	s.codec, err = token.NewCodec("")
	s.Require().NoError(err)

	s.service, err = New(
		s.codec, s.tokens, s.links,
		s.voters, s.categories, s.candidates,
		phone.NewMatcher("92", "0"),
		WithAuditPublisher(audit.NewStorePublisher(s.auditStore)),
	)
	s.Require().NoError(err)
}

func (s *ValidatorSuite) seedElection() {
	ctx := context.Background()
	s.Require().NoError(s.categories.Save(ctx, electionmodels.Category{
		ID: "cat-president", Name: "President", Active: true,
	}))
	s.Require().NoError(s.candidates.Save(ctx, electionmodels.Candidate{
		ID: "cand-a", Name: "Candidate A", CategoryID: "cat-president", Active: true,
	}))
	s.Require().NoError(s.candidates.Save(ctx, electionmodels.Candidate{
		ID: "cand-b", Name: "Candidate B", CategoryID: "cat-president", Active: true,
	}))
	s.Require().NoError(s.candidates.Save(ctx, electionmodels.Candidate{
		ID: "cand-retired", Name: "Retired", CategoryID: "cat-president", Active: false,
	}))
}

func (s *ValidatorSuite) seedVoter(voterID id.VoterID, phoneStored string, active, hasVoted bool) {
	s.Require().NoError(s.voters.Save(context.Background(), electionmodels.Voter{
		ID: voterID, Username: string(voterID), Phone: phoneStored,
		Active: active, HasVoted: hasVoted,
	}, phone.Digits(phoneStored)))
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ValidatorSuite) TestNew() {
	s.Run("nil codec returns error", func() {
		_, err := New(nil, s.tokens, s.links, s.voters, s.categories, s.candidates, nil)
		s.Error(err)
	})

	s.Run("nil stores return error", func() {
		_, err := New(s.codec, nil, s.links, s.voters, s.categories, s.candidates, nil)
		s.Error(err)
	})
}

// =============================================================================
// Dispatch Tests
// =============================================================================

func (s *ValidatorSuite) TestDispatch() {
	ctx := context.Background()
	s.seedElection()

	s.Run("empty credential is a bad request", func() {
		_, err := s.service.Validate(ctx, Request{})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown credential id is not found", func() {
		_, err := s.service.Validate(ctx, Request{Credential: "no-such-credential"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rejections are audited", func() {
		_, err := s.service.Validate(ctx, Request{Credential: "no-such-credential"})
		s.Error(err)

		events := s.auditStore.All()
		s.Require().NotEmpty(events)
		last := events[len(events)-1]
		s.Equal(audit.ActionValidationRejected, last.Action)
		s.Equal(string(dErrors.CodeNotFound), last.Reason)
	})
}

// =============================================================================
// Self-Encoded Token Tests
// =============================================================================

func (s *ValidatorSuite) encodeSelfToken(voterID id.VoterID, phoneNumber string, expiresAt time.Time) string {
	encoded, err := s.codec.Encode(models.SelfEncodedPayload{
		VoterID:    voterID,
		Phone:      phoneNumber,
		CategoryID: "cat-president",
		TokenType:  models.TokenIndividual,
		ExpiresAt:  expiresAt.UnixMilli(),
	})
	s.Require().NoError(err)
	return encoded
}

func (s *ValidatorSuite) TestSelfEncoded() {
	ctx := context.Background()
	s.seedElection()
	s.seedVoter("voter-1", "03001234567", true, false)

	s.Run("valid token yields authorization context", func() {
		encoded := s.encodeSelfToken("voter-1", "03001234567", time.Now().Add(time.Hour))

		authz, err := s.service.Validate(ctx, Request{Credential: encoded})
		s.Require().NoError(err)
		s.Equal(id.VoterID("voter-1"), authz.VoterID)
		s.Equal(id.CategoryID("cat-president"), authz.CategoryID)
		s.Equal("President", authz.CategoryName)
		s.Equal(models.KindSelfEncoded, authz.CredentialKind)
		s.Len(authz.Candidates, 2)
	})

	s.Run("token phone in international form still matches", func() {
		encoded := s.encodeSelfToken("voter-1", "+923001234567", time.Now().Add(time.Hour))

		authz, err := s.service.Validate(ctx, Request{Credential: encoded})
		s.NoError(err)
		s.Equal(id.VoterID("voter-1"), authz.VoterID)
	})

	s.Run("expired token is rejected", func() {
		encoded := s.encodeSelfToken("voter-1", "03001234567", time.Now().Add(-time.Minute))

		_, err := s.service.Validate(ctx, Request{Credential: encoded})
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("phone mismatch is not authorized", func() {
		encoded := s.encodeSelfToken("voter-1", "03009999999", time.Now().Add(time.Hour))

		_, err := s.service.Validate(ctx, Request{Credential: encoded})
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorizedForCredential))
	})

	s.Run("unknown voter is rejected", func() {
		encoded := s.encodeSelfToken("voter-ghost", "03001234567", time.Now().Add(time.Hour))

		_, err := s.service.Validate(ctx, Request{Credential: encoded})
		s.True(dErrors.HasCode(err, dErrors.CodeVoterNotFound))
	})

	s.Run("suspended voter is rejected", func() {
		s.seedVoter("voter-off", "03007770001", false, false)
		encoded := s.encodeSelfToken("voter-off", "03007770001", time.Now().Add(time.Hour))

		_, err := s.service.Validate(ctx, Request{Credential: encoded})
		s.True(dErrors.HasCode(err, dErrors.CodeVoterSuspended))
	})

	s.Run("voter who already voted is rejected", func() {
		s.seedVoter("voter-done", "03007770002", true, true)
		encoded := s.encodeSelfToken("voter-done", "03007770002", time.Now().Add(time.Hour))

		_, err := s.service.Validate(ctx, Request{Credential: encoded})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVoted))
	})
}

func (s *ValidatorSuite) TestSelfEncodedSignedMode() {
	ctx := context.Background()
	s.seedElection()
	s.seedVoter("voter-1", "03001234567", true, false)

	signedCodec, err := token.NewCodec("validation-secret")
	s.Require().NoError(err)
	signedService, err := New(
		signedCodec, s.tokens, s.links,
		s.voters, s.categories, s.candidates,
		phone.NewMatcher("92", "0"),
	)
	s.Require().NoError(err)

	s.Run("signed token validates", func() {
		encoded, err := signedCodec.Encode(models.SelfEncodedPayload{
			VoterID:    "voter-1",
			Phone:      "03001234567",
			CategoryID: "cat-president",
			TokenType:  models.TokenIndividual,
			ExpiresAt:  time.Now().Add(time.Hour).UnixMilli(),
		})
		s.Require().NoError(err)

		_, err = signedService.Validate(ctx, Request{Credential: encoded})
		s.NoError(err)
	})

	s.Run("unsigned token is malformed in signed mode", func() {
		encoded := s.encodeSelfToken("voter-1", "03001234567", time.Now().Add(time.Hour))

		_, err := signedService.Validate(ctx, Request{Credential: encoded})
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedCredential))
	})
}

// =============================================================================
// Legacy Token Tests
// =============================================================================

func (s *ValidatorSuite) TestIndividualToken() {
	ctx := context.Background()
	s.seedElection()
	s.seedVoter("voter-1", "03001234567", true, false)

	save := func(tok models.LegacyToken) {
		s.Require().NoError(s.tokens.Save(ctx, tok))
	}

	s.Run("valid token yields context for its voter", func() {
		save(models.LegacyToken{
			ID: "tok-1", VoterIDs: []id.VoterID{"voter-1"}, CategoryID: "cat-president",
			TokenType: models.TokenIndividual, ExpiresAt: time.Now().Add(time.Hour),
		})

		authz, err := s.service.Validate(ctx, Request{Credential: "tok-1"})
		s.Require().NoError(err)
		s.Equal(id.VoterID("voter-1"), authz.VoterID)
		s.Equal(models.KindLegacyToken, authz.CredentialKind)
		s.Equal(id.CredentialID("tok-1"), authz.CredentialID)
	})

	s.Run("used token is rejected before expiry check", func() {
		save(models.LegacyToken{
			ID: "tok-used", VoterIDs: []id.VoterID{"voter-1"}, CategoryID: "cat-president",
			TokenType: models.TokenIndividual, ExpiresAt: time.Now().Add(-time.Hour), Used: true,
		})

		_, err := s.service.Validate(ctx, Request{Credential: "tok-used"})
		s.True(dErrors.HasCode(err, dErrors.CodeDeactivated))
	})

	s.Run("expired token is rejected", func() {
		save(models.LegacyToken{
			ID: "tok-old", VoterIDs: []id.VoterID{"voter-1"}, CategoryID: "cat-president",
			TokenType: models.TokenIndividual, ExpiresAt: time.Now().Add(-time.Minute),
		})

		_, err := s.service.Validate(ctx, Request{Credential: "tok-old"})
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})
}

func (s *ValidatorSuite) TestCollectiveToken() {
	ctx := context.Background()
	s.seedElection()
	s.seedVoter("voter-1", "03001234567", true, false)
	s.seedVoter("voter-2", "03002222222", true, false)
	s.seedVoter("voter-3", "03003333333", true, false)

	s.Require().NoError(s.tokens.Save(ctx, models.LegacyToken{
		ID:         "tok-shared",
		VoterIDs:   []id.VoterID{"voter-1", "voter-2"},
		CategoryID: "cat-president",
		TokenType:  models.TokenCollective,
		ExpiresAt:  time.Now().Add(time.Hour),
		UsedBy:     map[id.VoterID]time.Time{"voter-2": time.Now()},
	}))

	s.Run("listed voter resolves by phone variant", func() {
		authz, err := s.service.Validate(ctx, Request{
			Credential: "tok-shared",
			Phone:      "+92 300 1234567",
		})
		s.Require().NoError(err)
		s.Equal(id.VoterID("voter-1"), authz.VoterID)
	})

	s.Run("phone is required", func() {
		_, err := s.service.Validate(ctx, Request{Credential: "tok-shared"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unlisted voter is not authorized", func() {
		_, err := s.service.Validate(ctx, Request{
			Credential: "tok-shared",
			Phone:      "03003333333",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorizedForCredential))
	})

	s.Run("voter already recorded on the token is rejected", func() {
		_, err := s.service.Validate(ctx, Request{
			Credential: "tok-shared",
			Phone:      "03002222222",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVoted))
	})

	s.Run("deactivated token is dead for every listed voter", func() {
		s.Require().NoError(s.tokens.Save(ctx, models.LegacyToken{
			ID:         "tok-retired",
			VoterIDs:   []id.VoterID{"voter-1", "voter-2"},
			CategoryID: "cat-president",
			TokenType:  models.TokenCollective,
			ExpiresAt:  time.Now().Add(time.Hour),
		}))
		s.Require().NoError(s.tokens.Deactivate(ctx, "tok-retired"))

		_, err := s.service.Validate(ctx, Request{
			Credential: "tok-retired",
			Phone:      "03001234567",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeDeactivated))
	})
}

// =============================================================================
// Unified Link Tests
// =============================================================================

func (s *ValidatorSuite) TestUnifiedLink() {
	ctx := context.Background()
	s.seedElection()
	s.seedVoter("voter-1", "03001234567", true, false)
	s.seedVoter("voter-2", "03002222222", true, false)

	save := func(link models.UnifiedLink) {
		s.Require().NoError(s.links.Save(ctx, link))
	}

	save(models.UnifiedLink{
		ID: "link-open", CategoryID: "cat-president", CategoryName: "President",
		ExpiresAt: time.Now().Add(time.Hour), Active: true,
	})

	s.Run("any registered voter may use an open link", func() {
		authz, err := s.service.Validate(ctx, Request{
			Credential: "link-open",
			Phone:      "923001234567",
		})
		s.Require().NoError(err)
		s.Equal(id.VoterID("voter-1"), authz.VoterID)
		s.Equal(models.KindUnifiedLink, authz.CredentialKind)
	})

	s.Run("phone is required", func() {
		_, err := s.service.Validate(ctx, Request{Credential: "link-open"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("personal token against an open link is the wrong kind", func() {
		_, err := s.service.Validate(ctx, Request{
			Credential:    "link-open",
			PersonalToken: "abc123secret",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeWrongCredentialKind))
	})

	s.Run("unregistered phone finds no voter", func() {
		_, err := s.service.Validate(ctx, Request{
			Credential: "link-open",
			Phone:      "03005550000",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeVoterNotFound))
	})

	s.Run("deactivated link is rejected", func() {
		save(models.UnifiedLink{
			ID: "link-off", CategoryID: "cat-president",
			ExpiresAt: time.Now().Add(time.Hour), Active: false,
		})

		_, err := s.service.Validate(ctx, Request{Credential: "link-off", Phone: "03001234567"})
		s.True(dErrors.HasCode(err, dErrors.CodeDeactivated))
	})

	s.Run("expired link is rejected", func() {
		save(models.UnifiedLink{
			ID: "link-old", CategoryID: "cat-president",
			ExpiresAt: time.Now().Add(-time.Minute), Active: true,
		})

		_, err := s.service.Validate(ctx, Request{Credential: "link-old", Phone: "03001234567"})
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("selected phones restrict the link", func() {
		save(models.UnifiedLink{
			ID: "link-subset", CategoryID: "cat-president",
			SelectedVoterPhones: []string{"03002222222"},
			ExpiresAt:           time.Now().Add(time.Hour), Active: true,
		})

		_, err := s.service.Validate(ctx, Request{Credential: "link-subset", Phone: "03001234567"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorizedForCredential))

		authz, err := s.service.Validate(ctx, Request{Credential: "link-subset", Phone: "+923002222222"})
		s.NoError(err)
		s.Equal(id.VoterID("voter-2"), authz.VoterID)
	})

	s.Run("voter already recorded on the link is rejected", func() {
		save(models.UnifiedLink{
			ID: "link-used", CategoryID: "cat-president",
			ExpiresAt: time.Now().Add(time.Hour), Active: true,
			UsedBy:    map[id.VoterID]time.Time{"voter-1": time.Now()},
		})

		_, err := s.service.Validate(ctx, Request{Credential: "link-used", Phone: "03001234567"})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVoted))
	})
}

// =============================================================================
// Particular Link Tests
// =============================================================================

func (s *ValidatorSuite) TestParticularLink() {
	ctx := context.Background()
	s.seedElection()
	s.seedVoter("voter-1", "03001234567", true, false)
	s.seedVoter("voter-2", "03002222222", true, false)

	s.Require().NoError(s.links.Save(ctx, models.ParticularLink{
		ID: "link-part", CategoryID: "cat-president", CategoryName: "President",
		VoterEntries: []models.VoterEntry{
			{VoterID: "voter-1", Username: "voter-1", Phone: "03001234567", PersonalToken: "abc123secret"},
			{VoterID: "voter-2", Username: "voter-2", Phone: "03002222222", PersonalToken: "def456secret"},
		},
		ExpiresAt: time.Now().Add(time.Hour), Active: true,
		UsedBy:    map[id.VoterID]time.Time{"voter-2": time.Now()},
	}))

	s.Run("matching personal token identifies the voter", func() {
		authz, err := s.service.Validate(ctx, Request{
			Credential:    "link-part",
			PersonalToken: "abc123secret",
		})
		s.Require().NoError(err)
		s.Equal(id.VoterID("voter-1"), authz.VoterID)
		s.Equal(models.KindParticularLink, authz.CredentialKind)
	})

	s.Run("personal token is required", func() {
		_, err := s.service.Validate(ctx, Request{Credential: "link-part"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("phone against a particular link is the wrong kind", func() {
		_, err := s.service.Validate(ctx, Request{
			Credential: "link-part",
			Phone:      "03001234567",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeWrongCredentialKind))
	})

	s.Run("personal token match is byte exact", func() {
		_, err := s.service.Validate(ctx, Request{
			Credential:    "link-part",
			PersonalToken: "ABC123SECRET",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorizedForCredential))
	})

	s.Run("voter already recorded on the link is rejected", func() {
		_, err := s.service.Validate(ctx, Request{
			Credential:    "link-part",
			PersonalToken: "def456secret",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVoted))
	})
}

// =============================================================================
// Ballot Context Tests
// =============================================================================

func (s *ValidatorSuite) TestBallotContext() {
	ctx := context.Background()
	s.seedElection()
	s.seedVoter("voter-1", "03001234567", true, false)

	s.Run("inactive candidates are excluded from the ballot", func() {
		encoded := s.encodeSelfToken("voter-1", "03001234567", time.Now().Add(time.Hour))

		authz, err := s.service.Validate(ctx, Request{Credential: encoded})
		s.Require().NoError(err)
		for _, c := range authz.Candidates {
			s.True(c.Active)
			s.NotEqual(id.CandidateID("cand-retired"), c.ID)
		}
	})

	s.Run("missing category is rejected", func() {
		encoded, err := s.codec.Encode(models.SelfEncodedPayload{
			VoterID:    "voter-1",
			Phone:      "03001234567",
			CategoryID: "cat-ghost",
			TokenType:  models.TokenIndividual,
			ExpiresAt:  time.Now().Add(time.Hour).UnixMilli(),
		})
		s.Require().NoError(err)

		_, err = s.service.Validate(ctx, Request{Credential: encoded})
		s.True(dErrors.HasCode(err, dErrors.CodeCategoryNotFound))
	})
}
