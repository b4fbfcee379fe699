package relations

import (
	"net/url"
	"time"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
)

// Record is one raw relation between two accounts as served by the API.
type Record struct {
	ID          string   `json:"id" bson:"id"`
	PagingToken string   `json:"paging_token" bson:"paging_token"`
	Type        uint32   `json:"type" bson:"type"`           // Relation bitmask, see graph.RelationKind
	Transfers   []int64  `json:"transfers" bson:"transfers"` // [forward, backward] payment counts
	Created     int64    `json:"created" bson:"created"`     // Unix seconds of the first observed relation
	Accounts    []string `json:"accounts" bson:"accounts"`   // [source, target]
}

// Validate checks the record shape.
func (r Record) Validate() error {
	switch {
	case r.ID == "":
		return apperrors.New(apperrors.ErrCodeInvalidRecord, "relation record has no id")
	case r.PagingToken == "":
		return apperrors.New(apperrors.ErrCodeInvalidRecord, "relation %s has no paging_token", r.ID)
	case len(r.Accounts) != 2:
		return apperrors.New(apperrors.ErrCodeInvalidRecord, "relation %s must reference 2 accounts, got %d", r.ID, len(r.Accounts))
	case r.Accounts[0] == "" || r.Accounts[1] == "":
		return apperrors.New(apperrors.ErrCodeInvalidRecord, "relation %s references an empty account", r.ID)
	case len(r.Transfers) != 2:
		return apperrors.New(apperrors.ErrCodeInvalidRecord, "relation %s must carry 2 transfer counters, got %d", r.ID, len(r.Transfers))
	case r.Transfers[0] < 0 || r.Transfers[1] < 0:
		return apperrors.New(apperrors.ErrCodeInvalidRecord, "relation %s has negative transfer counters", r.ID)
	}
	if err := apperrors.ValidateCursor(r.PagingToken); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidRecord, err, "relation %s", r.ID)
	}
	return nil
}

// Other returns the counter-party of address in the record.
// ok is false if address is not one of the two accounts.
func (r Record) Other(address string) (peer string, ok bool) {
	if len(r.Accounts) != 2 {
		return "", false
	}
	switch address {
	case r.Accounts[0]:
		return r.Accounts[1], true
	case r.Accounts[1]:
		return r.Accounts[0], true
	}
	return "", false
}

// CreatedAt converts Created to a time in UTC.
func (r Record) CreatedAt() time.Time {
	return time.Unix(r.Created, 0).UTC()
}

// Page is one page of relation records for an account.
type Page struct {
	Records []Record `json:"records"`
	Next    string   `json:"next,omitempty"` // Cursor advertised by the next link, if any
}

// LastCursor returns the paging token of the last record, or "" for an empty page.
func (p *Page) LastCursor() string {
	if p == nil || len(p.Records) == 0 {
		return ""
	}
	return p.Records[len(p.Records)-1].PagingToken
}

// Validate checks every record and that each one involves address.
func (p *Page) Validate(address string) error {
	for _, r := range p.Records {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, ok := r.Other(address); !ok {
			return apperrors.New(apperrors.ErrCodeInvalidRecord, "relation %s does not involve %s", r.ID, address)
		}
	}
	return nil
}

type envelope struct {
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
	Embedded struct {
		Records []Record `json:"records"`
	} `json:"_embedded"`
}

func (e envelope) page() *Page {
	p := &Page{Records: e.Embedded.Records}
	if p.Records == nil {
		p.Records = []Record{}
	}
	if href := e.Links.Next.Href; href != "" {
		if u, err := url.Parse(href); err == nil {
			p.Next = u.Query().Get("cursor")
		}
	}
	return p
}
