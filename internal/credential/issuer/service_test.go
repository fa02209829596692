package issuer

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

type IssuerSuite struct {
	suite.Suite
	tokens     *credmemory.TokenStore
	links      *credmemory.LinkStore
	voters     *electionmemory.VoterStore
	categories *electionmemory.CategoryStore
	auditStore *audit.InMemoryStore
	codec      *token.Codec
	service    *Service
}

func TestIssuerSuite(t *testing.T) {
	suite.Run(t, new(IssuerSuite))
}

func (s *IssuerSuite) SetupTest() {
	s.tokens = credmemory.NewTokenStore()
	s.links = credmemory.NewLinkStore()
	s.voters = electionmemory.NewVoterStore()
	s.categories = electionmemory.NewCategoryStore()
	s.auditStore = audit.NewInMemoryStore()

	var err error
	s.codec, err = token.NewCodec("")
	s.Require().NoError(err)

	s.service, err = New(s.tokens, s.links, s.voters, s.categories, s.codec,
		phone.NewMatcher("92", "0"),
		WithAuditPublisher(audit.NewStorePublisher(s.auditStore)),
	)
	s.Require().NoError(err)

	ctx := context.Background()
	s.Require().NoError(s.categories.Save(ctx, electionmodels.Category{
		ID: "cat-president", Name: "President", Active: true,
	}))
	s.Require().NoError(s.voters.Save(ctx, electionmodels.Voter{
		ID: "voter-1", Username: "ayesha", Phone: "03001234567", Active: true,
	}, "03001234567"))
	s.Require().NoError(s.voters.Save(ctx, electionmodels.Voter{
		ID: "voter-2", Username: "bilal", Phone: "03002222222", Active: true,
	}, "03002222222"))
}

// =============================================================================
// TTL and Category Guard Tests
// =============================================================================

func (s *IssuerSuite) TestGuards() {
	ctx := context.Background()

	s.Run("ttl below the floor is rejected", func() {
		_, err := s.service.IssueUnifiedLink(ctx, "cat-president", time.Second, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("link ttl above the ceiling is rejected", func() {
		_, err := s.service.IssueUnifiedLink(ctx, "cat-president", 31*24*time.Hour, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("token ttl ceiling is tighter than links", func() {
		_, err := s.service.IssueLegacyToken(ctx, []id.VoterID{"voter-1"}, "cat-president",
			models.TokenIndividual, 8*24*time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		_, err = s.service.IssueUnifiedLink(ctx, "cat-president", 8*24*time.Hour, nil)
		s.NoError(err)
	})

	s.Run("unknown category is rejected", func() {
		_, err := s.service.IssueUnifiedLink(ctx, "cat-ghost", time.Hour, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeCategoryNotFound))
	})
}

// =============================================================================
// Unified Link Tests
// =============================================================================

func (s *IssuerSuite) TestIssueUnifiedLink() {
	ctx := context.Background()

	s.Run("open link carries category name and no phone restriction", func() {
		link, err := s.service.IssueUnifiedLink(ctx, "cat-president", time.Hour, nil)
		s.Require().NoError(err)
		s.NotEmpty(link.ID)
		s.Equal("President", link.CategoryName)
		s.True(link.Active)
		s.Empty(link.SelectedVoterPhones)
		s.WithinDuration(time.Now().Add(time.Hour), link.ExpiresAt, 5*time.Second)

		stored, err := s.links.Find(ctx, link.ID)
		s.Require().NoError(err)
		s.Equal(models.KindUnifiedLink, stored.CredentialKind())
	})

	s.Run("voter subset is recorded as registered phones", func() {
		link, err := s.service.IssueUnifiedLink(ctx, "cat-president", time.Hour,
			[]id.VoterID{"voter-1", "voter-ghost", "voter-2"})
		s.Require().NoError(err)
		s.ElementsMatch([]string{"03001234567", "03002222222"}, link.SelectedVoterPhones)
	})

	s.Run("subset with no resolvable voter is rejected", func() {
		_, err := s.service.IssueUnifiedLink(ctx, "cat-president", time.Hour,
			[]id.VoterID{"voter-ghost"})
		s.True(dErrors.HasCode(err, dErrors.CodeVoterNotFound))
	})

	s.Run("issuance is audited", func() {
		_, err := s.service.IssueUnifiedLink(ctx, "cat-president", time.Hour, nil)
		s.Require().NoError(err)

		events := s.auditStore.All()
		s.Require().NotEmpty(events)
		last := events[len(events)-1]
		s.Equal(audit.ActionCredentialIssued, last.Action)
		s.Equal(string(models.KindUnifiedLink), last.CredentialKind)
	})
}

// =============================================================================
// Particular Link Tests
// =============================================================================

func (s *IssuerSuite) TestIssueParticularLink() {
	ctx := context.Background()

	s.Run("mints a distinct personal token per voter", func() {
		link, err := s.service.IssueParticularLink(ctx,
			[]id.VoterID{"voter-1", "voter-2"}, "cat-president", time.Hour)
		s.Require().NoError(err)
		s.Require().Len(link.VoterEntries, 2)
		s.NotEmpty(link.VoterEntries[0].PersonalToken)
		s.NotEmpty(link.VoterEntries[1].PersonalToken)
		s.NotEqual(link.VoterEntries[0].PersonalToken, link.VoterEntries[1].PersonalToken)
		s.Equal("ayesha", link.VoterEntries[0].Username)
	})

	s.Run("unknown voters are skipped", func() {
		link, err := s.service.IssueParticularLink(ctx,
			[]id.VoterID{"voter-1", "voter-ghost"}, "cat-president", time.Hour)
		s.Require().NoError(err)
		s.Len(link.VoterEntries, 1)
	})

	s.Run("no resolvable voter is rejected", func() {
		_, err := s.service.IssueParticularLink(ctx,
			[]id.VoterID{"voter-ghost"}, "cat-president", time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeVoterNotFound))
	})

	s.Run("empty voter list is a bad request", func() {
		_, err := s.service.IssueParticularLink(ctx, nil, "cat-president", time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

// =============================================================================
// Legacy Token Tests
// =============================================================================

func (s *IssuerSuite) TestIssueLegacyToken() {
	ctx := context.Background()

	s.Run("individual token requires exactly one voter", func() {
		_, err := s.service.IssueLegacyToken(ctx,
			[]id.VoterID{"voter-1", "voter-2"}, "cat-president", models.TokenIndividual, time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		tok, err := s.service.IssueLegacyToken(ctx,
			[]id.VoterID{"voter-1"}, "cat-president", models.TokenIndividual, time.Hour)
		s.Require().NoError(err)
		s.False(tok.Used)

		stored, err := s.tokens.Find(ctx, tok.ID)
		s.Require().NoError(err)
		s.Equal(models.TokenIndividual, stored.TokenType)
	})

	s.Run("collective token carries the voter list", func() {
		tok, err := s.service.IssueLegacyToken(ctx,
			[]id.VoterID{"voter-1", "voter-2"}, "cat-president", models.TokenCollective, time.Hour)
		s.Require().NoError(err)
		s.Len(tok.VoterIDs, 2)
	})

	s.Run("unknown voter fails issuance", func() {
		_, err := s.service.IssueLegacyToken(ctx,
			[]id.VoterID{"voter-ghost"}, "cat-president", models.TokenIndividual, time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeVoterNotFound))
	})
}

// =============================================================================
// Self-Encoded Token Tests
// =============================================================================

func (s *IssuerSuite) TestIssueSelfEncodedToken() {
	ctx := context.Background()

	s.Run("encoded token decodes to the voter's registered data", func() {
		encoded, err := s.service.IssueSelfEncodedToken(ctx, "voter-1", "cat-president", time.Hour)
		s.Require().NoError(err)

		payload, err := s.codec.Decode(encoded)
		s.Require().NoError(err)
		s.Equal(id.VoterID("voter-1"), payload.VoterID)
		s.Equal("03001234567", payload.Phone)
		s.Equal(id.CategoryID("cat-president"), payload.CategoryID)
		s.Equal(models.TokenIndividual, payload.TokenType)
		s.Greater(payload.ExpiresAt, time.Now().UnixMilli())
	})

	s.Run("nothing is persisted", func() {
		encoded, err := s.service.IssueSelfEncodedToken(ctx, "voter-1", "cat-president", time.Hour)
		s.Require().NoError(err)

		_, err = s.tokens.Find(ctx, id.CredentialID(encoded))
		s.Error(err)
	})
}

// =============================================================================
// Deactivation Tests
// =============================================================================

func (s *IssuerSuite) TestDeactivate() {
	ctx := context.Background()

	s.Run("deactivating a link flips active off", func() {
		link, err := s.service.IssueUnifiedLink(ctx, "cat-president", time.Hour, nil)
		s.Require().NoError(err)

		s.Require().NoError(s.service.DeactivateLink(ctx, link.ID))

		stored, err := s.links.Find(ctx, link.ID)
		s.Require().NoError(err)
		unified, ok := stored.(models.UnifiedLink)
		s.Require().True(ok)
		s.False(unified.Active)
	})

	s.Run("deactivating a token marks it used", func() {
		tok, err := s.service.IssueLegacyToken(ctx,
			[]id.VoterID{"voter-1"}, "cat-president", models.TokenIndividual, time.Hour)
		s.Require().NoError(err)

		s.Require().NoError(s.service.DeactivateToken(ctx, tok.ID))

		stored, err := s.tokens.Find(ctx, tok.ID)
		s.Require().NoError(err)
		s.True(stored.Used)
	})

	s.Run("unknown ids are not found", func() {
		s.True(dErrors.HasCode(s.service.DeactivateLink(ctx, "ghost"), dErrors.CodeNotFound))
		s.True(dErrors.HasCode(s.service.DeactivateToken(ctx, "ghost"), dErrors.CodeNotFound))
	})
}
