package google

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// AccountTokenProvider yields oauth2 token sources from credential material
// stored on the account. Refreshed tokens are written back so the refresh
// token rotation survives restarts.
type AccountTokenProvider struct {
	config   *oauth2.Config
	accounts domain.AccountRepository

	mu      sync.Mutex
	sources map[uuid.UUID]oauth2.TokenSource
}

// NewAccountTokenProvider creates a token provider over the account store.
func NewAccountTokenProvider(config *oauth2.Config, accounts domain.AccountRepository) *AccountTokenProvider {
	return &AccountTokenProvider{
		config:   config,
		accounts: accounts,
		sources:  make(map[uuid.UUID]oauth2.TokenSource),
	}
}

// TokenSource returns a refreshing token source for the account.
func (p *AccountTokenProvider) TokenSource(ctx context.Context, accountID uuid.UUID) (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if source, ok := p.sources[accountID]; ok {
		return source, nil
	}

	account, err := p.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("unknown account %s", accountID)
	}

	var token oauth2.Token
	if err := json.Unmarshal(account.Credential(), &token); err != nil {
		return nil, fmt.Errorf("decoding stored credential: %w", err)
	}

	source := oauth2.ReuseTokenSource(&token, &persistingSource{
		base:      p.config.TokenSource(ctx, &token),
		accounts:  p.accounts,
		accountID: accountID,
	})
	p.sources[accountID] = source
	return source, nil
}

// persistingSource saves each refreshed token back onto the account row.
type persistingSource struct {
	base      oauth2.TokenSource
	accounts  domain.AccountRepository
	accountID uuid.UUID
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	account, findErr := s.accounts.FindByID(context.Background(), s.accountID)
	if findErr != nil || account == nil {
		return token, nil
	}
	credential, marshalErr := json.Marshal(token)
	if marshalErr != nil {
		return token, nil
	}
	account.SetCredential(credential, token.Expiry)
	// Persisting is best-effort; a failed write only costs a refresh later.
	_ = s.accounts.Save(context.Background(), account)
	return token, nil
}
