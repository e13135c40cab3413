// Package pipeline wires the polling, matching and notification stages
// into one concurrent flow. Stages hand work to each other over bounded
// channels, so a slow downstream stage holds back its producers instead
// of growing an unbounded backlog.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tkclough/salescrawler/internal/discord"
	"github.com/tkclough/salescrawler/internal/model"
	"github.com/tkclough/salescrawler/internal/rule"
	"github.com/tkclough/salescrawler/internal/storage"
	"github.com/tkclough/salescrawler/internal/title"
)

// chanCapacity bounds every inter-stage channel.
const chanCapacity = 32

// Match is one listing that satisfied a rule, together with the parsed
// title it was matched on.
type Match struct {
	Rule    *rule.Rule
	Listing model.Listing
	Title   model.ParsedTitle
}

type messageKind int

const (
	msgNewMatch messageKind = iota
	msgTimerFired
)

// Message is what the notifier consumes: either a fresh match to queue
// or a timer tick telling it to flush the queue.
type Message struct {
	kind  messageKind
	match Match
}

func newMatchMessage(m Match) Message {
	return Message{kind: msgNewMatch, match: m}
}

func timerMessage() Message {
	return Message{kind: msgTimerFired}
}

// ListingSource produces batches of new listings and reports how long
// to wait before asking again.
type ListingSource interface {
	AuthExpired() bool
	Authenticate(ctx context.Context) error
	FetchNew(ctx context.Context) ([]model.Listing, error)
	WaitTime() time.Duration
}

// MessageSink delivers a notification message to the chat channel.
type MessageSink interface {
	CreateMessage(ctx context.Context, msg *discord.CreateMessageRequest) error
}

// Poller repeatedly fetches new listings and feeds them downstream.
type Poller struct {
	source ListingSource
	out    chan<- model.Listing
	log    *slog.Logger
}

// Run polls until the context is cancelled. Authentication and fetch
// failures are fatal to the poll task.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if p.source.AuthExpired() {
			p.log.Info("authenticating with listing source")
			if err := p.source.Authenticate(ctx); err != nil {
				return fmt.Errorf("authenticate: %w", err)
			}
		}

		listings, err := p.source.FetchNew(ctx)
		if err != nil {
			return fmt.Errorf("fetch new listings: %w", err)
		}
		p.log.Debug("fetched listings", "count", len(listings))

		for _, l := range listings {
			select {
			case p.out <- l:
			case <-ctx.Done():
				return nil
			}
		}

		wait := p.source.WaitTime()
		p.log.Debug("waiting before next poll", "duration", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

// Matcher filters the listing stream down to rule matches, persisting
// every step so a listing is only ever processed once.
type Matcher struct {
	store     storage.Storage
	rules     *rule.Set
	subreddit string
	in        <-chan model.Listing
	out       chan<- Message
	log       *slog.Logger
}

func (m *Matcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-m.in:
			if !ok {
				return nil
			}
			if err := m.process(ctx, l); err != nil {
				return err
			}
		}
	}
}

// process runs one listing through the persistence and match steps. A
// duplicate at any step means the listing was already handled and the
// rest is skipped.
func (m *Matcher) process(ctx context.Context, l model.Listing) error {
	log := m.log.With("post_id", l.ID)

	inserted, err := m.store.InsertListing(ctx, &l)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	if !inserted {
		log.Debug("listing already seen")
		return nil
	}

	parsed, ok := title.Parse(l.Title, l.ID)
	if !ok {
		log.Debug("title does not follow the posting convention", "title", l.Title)
		return nil
	}

	inserted, err = m.store.InsertParsedTitle(ctx, parsed)
	if err != nil {
		return fmt.Errorf("insert parsed title: %w", err)
	}
	if !inserted {
		log.Debug("parsed title already recorded")
		return nil
	}

	r := m.rules.Match(&l, parsed)
	if r == nil {
		log.Debug("no rule matched")
		return nil
	}
	log.Info("rule matched", "rule", r.DisplayName(), "title", l.Title, "url", l.CommentsURL(m.subreddit))

	if _, err := m.store.InsertRuleMatch(ctx, r.Fingerprint(), l.ID); err != nil {
		return fmt.Errorf("insert rule match: %w", err)
	}

	select {
	case m.out <- newMatchMessage(Match{Rule: r, Listing: l, Title: *parsed}):
	case <-ctx.Done():
	}
	return nil
}

// Notifier queues matches and sends them as one batched chat message
// whenever the timer fires. Ticks with an empty queue are no-ops.
type Notifier struct {
	sink      MessageSink
	subreddit string
	in        <-chan Message
	log       *slog.Logger
}

func (n *Notifier) Run(ctx context.Context) error {
	var queue []Match
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-n.in:
			if !ok {
				return nil
			}
			switch msg.kind {
			case msgNewMatch:
				queue = append(queue, msg.match)
			case msgTimerFired:
				if len(queue) == 0 {
					continue
				}
				n.log.Info("sending match batch", "count", len(queue))
				if err := n.sink.CreateMessage(ctx, n.batchRequest(queue)); err != nil {
					return fmt.Errorf("send match batch: %w", err)
				}
				queue = queue[:0]
			}
		}
	}
}

func (n *Notifier) batchRequest(matches []Match) *discord.CreateMessageRequest {
	req := &discord.CreateMessageRequest{
		Content: fmt.Sprintf("Found %d matches:", len(matches)),
	}
	for _, m := range matches {
		req.Embeds = append(req.Embeds, discord.Embed{
			Title:       m.Rule.DisplayName(),
			Description: m.Listing.Title,
			URL:         m.Listing.CommentsURL(n.subreddit),
		})
	}
	return req
}

// Clock emits a timer message on out immediately and then once every
// period. The send blocks, so a stalled consumer delays subsequent
// ticks rather than dropping them.
func Clock(ctx context.Context, period time.Duration, out chan<- Message) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case out <- timerMessage():
		case <-ctx.Done():
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Pipeline owns the full flow from listing source to chat sink.
type Pipeline struct {
	Source       ListingSource
	Sink         MessageSink
	Store        storage.Storage
	Rules        *rule.Set
	Subreddit    string
	SendInterval time.Duration
	Log          *slog.Logger
}

// Run records the rule set, starts all stages and blocks until the
// context is cancelled or a stage fails. The first stage error cancels
// the others and is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	rules := p.Rules.Rules()
	for i := range rules {
		if _, err := p.Store.InsertRule(ctx, &rules[i]); err != nil {
			return fmt.Errorf("record rule %s: %w", rules[i].DisplayName(), err)
		}
	}
	p.Log.Info("starting pipeline", "rules", len(rules))

	listings := make(chan model.Listing, chanCapacity)
	messages := make(chan Message, chanCapacity)

	poller := &Poller{source: p.Source, out: listings, log: p.Log.With("stage", "poller")}
	matcher := &Matcher{
		store:     p.Store,
		rules:     p.Rules,
		subreddit: p.Subreddit,
		in:        listings,
		out:       messages,
		log:       p.Log.With("stage", "matcher"),
	}
	notifier := &Notifier{
		sink:      p.Sink,
		subreddit: p.Subreddit,
		in:        messages,
		log:       p.Log.With("stage", "notifier"),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stages := []func(context.Context) error{
		poller.Run,
		matcher.Run,
		notifier.Run,
		func(ctx context.Context) error {
			return Clock(ctx, p.SendInterval, messages)
		},
	}

	var wg sync.WaitGroup
	errc := make(chan error, len(stages))
	for _, stage := range stages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := stage(ctx); err != nil {
				errc <- err
				cancel()
			}
		}()
	}
	wg.Wait()
	close(errc)
	return <-errc
}
