// Package model defines the domain types used across the application.
package model

import "fmt"

// Listing is one raw post observed from the listing source. Field names
// follow the wire format of the listing API.
type Listing struct {
	ID            string  `json:"id"`
	CreatedUTC    float64 `json:"created_utc"`
	Downs         float64 `json:"downs"`
	LinkFlairText *string `json:"link_flair_text"`
	Title         string  `json:"title"`
	Ups           float64 `json:"ups"`
	URL           string  `json:"url"`
}

// CommentsURL returns the discussion page for the listing on the given
// subreddit.
func (l *Listing) CommentsURL(subreddit string) string {
	return fmt.Sprintf("https://www.reddit.com/r/%s/comments/%s", subreddit, l.ID)
}

// ParsedTitle is the structured decomposition of a listing title. It
// exists only for titles that follow the posting convention.
type ParsedTitle struct {
	PostID       string
	ProductType  string
	Description  string
	PriceDollars int64
	PriceCents   int64
	ExtraDetails *string
}

// Price is the value compared against rule price bounds. Cents carry a
// tenth's weight.
func (t *ParsedTitle) Price() float64 {
	return float64(t.PriceDollars) + 0.1*float64(t.PriceCents)
}
