package relations

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
)

// FetchRelations retrieves one page of relations for address.
//
// An empty cursor requests the first page; otherwise pass the paging token of
// the last record already seen ([Page.LastCursor]). A page with fewer than
// limit records is the last one.
//
// Returns:
//   - the validated Page on success (never nil when err is nil)
//   - [ErrNotFound] if the account is unknown
//   - an INVALID_RECORD error for malformed responses
//   - [ErrNetwork] or a rate limit error once retries are exhausted
func (c *Client) FetchRelations(ctx context.Context, address string, limit int, cursor string) (*Page, error) {
	if address == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidAddress, "account address cannot be empty")
	}
	if err := apperrors.ValidatePageSize(limit); err != nil {
		return nil, err
	}
	if err := apperrors.ValidateCursor(cursor); err != nil {
		return nil, err
	}

	key := c.keyer.RelationsKey(c.network, address, limit, cursor)

	var page Page
	err := c.cached(ctx, key, &page, func() error {
		var env envelope
		if err := c.getJSON(ctx, c.relationsURL(address, limit, cursor), &env); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: account %s", err, address)
			}
			return err
		}
		p := env.page()
		if err := p.Validate(address); err != nil {
			return err
		}
		page = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if page.Records == nil {
		page.Records = []Record{}
	}
	return &page, nil
}
