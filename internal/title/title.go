// Package title extracts structured sale details from raw listing
// titles.
package title

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tkclough/salescrawler/internal/model"
)

// Listing titles follow the subreddit convention of a bracketed product
// category, a free-text description, and a dollar price, optionally
// trailed by notes: "[GPU] ASUS RTX 4070 Ti $799.99 FS".
var titleRe = regexp.MustCompile(`\[(?P<type>[ \w]+)\](?P<desc>[^$]*)\$(?P<dollars>\d+)(\.(?P<cents>\d+))?(?P<extra>[^\d].*)?`)

var (
	typeIdx    = titleRe.SubexpIndex("type")
	descIdx    = titleRe.SubexpIndex("desc")
	dollarsIdx = titleRe.SubexpIndex("dollars")
	centsIdx   = titleRe.SubexpIndex("cents")
	extraIdx   = titleRe.SubexpIndex("extra")
)

// Parse decomposes a raw title into its structured form. The second
// return is false when the title does not follow the convention; such
// titles are not actionable and carry no error.
func Parse(raw, postID string) (*model.ParsedTitle, bool) {
	m := titleRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}

	dollars, err := strconv.ParseInt(m[dollarsIdx], 10, 32)
	if err != nil {
		return nil, false
	}

	var cents int64
	if m[centsIdx] != "" {
		cents, err = strconv.ParseInt(m[centsIdx], 10, 8)
		if err != nil {
			return nil, false
		}
	}

	var extra *string
	if m[extraIdx] != "" {
		v := strings.TrimSpace(m[extraIdx])
		extra = &v
	}

	return &model.ParsedTitle{
		PostID:       postID,
		ProductType:  strings.TrimSpace(m[typeIdx]),
		Description:  strings.TrimSpace(m[descIdx]),
		PriceDollars: dollars,
		PriceCents:   cents,
		ExtraDetails: extra,
	}, true
}
