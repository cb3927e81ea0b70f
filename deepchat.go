package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/deepchat-cli/deepchat/internal/cache"
	"github.com/deepchat-cli/deepchat/internal/chat"
	"github.com/deepchat-cli/deepchat/internal/deepseek"
	"github.com/deepchat-cli/deepchat/internal/proto"
)

type cacheDetails struct {
	WriteID, Title, ReadID string
}

type deepchat struct {
	config Config
	db     *convoDB
	cache  *cache.Conversations
	client *deepseek.Client
}

func newDeepchat(cfg Config) (*deepchat, error) {
	db, err := openDB(cfg.CachePath)
	if err != nil {
		return nil, userError{
			err:    err,
			reason: "Could not open the conversations database.",
		}
	}
	convoCache, err := cache.New(cfg.CachePath)
	if err != nil {
		return nil, userError{
			err:    err,
			reason: "Could not create the conversations cache.",
		}
	}
	ccfg := deepseek.DefaultConfig(os.Getenv(cfg.APIKeyEnv))
	if cfg.BaseURL != "" {
		ccfg.BaseURL = cfg.BaseURL
	}
	return &deepchat{
		config: cfg,
		db:     db,
		cache:  convoCache,
		client: deepseek.New(ccfg),
	}, nil
}

func (d *deepchat) Close() error {
	return d.db.Close()
}

// findCacheOpsDetails resolves the continue, title, and show flags into
// the conversation ids to read from and write to.
func (d *deepchat) findCacheOpsDetails() (cacheDetails, error) {
	var det cacheDetails

	if d.config.Show != "" {
		convo, err := d.db.Find(d.config.Show)
		if err != nil {
			return det, userError{
				err:    err,
				reason: "Could not find the conversation.",
			}
		}
		det.ReadID = convo.ID
		return det, nil
	}

	if d.config.Continue != "" {
		convo, err := d.db.Find(d.config.Continue)
		switch {
		case err == nil:
			det.ReadID = convo.ID
			det.WriteID = convo.ID
			det.Title = convo.Title
		case errors.Is(err, errNoMatches):
			// Not a known id or title. Continue from the most recent
			// conversation and use the input as the new title.
			if head, headErr := d.db.FindHEAD(); headErr == nil {
				det.ReadID = head.ID
			}
			det.Title = d.config.Continue
		default:
			return det, userError{
				err:    err,
				reason: "Could not find the conversation to continue from.",
			}
		}
	}

	if d.config.ContinueLast {
		head, err := d.db.FindHEAD()
		if err != nil && !errors.Is(err, errNoMatches) {
			return det, userError{
				err:    err,
				reason: "Could not find the last conversation.",
			}
		}
		if head != nil {
			det.ReadID = head.ID
			det.WriteID = head.ID
		}
	}

	if d.config.Title != "" {
		det.Title = d.config.Title
		det.WriteID = newConversationID()
	}

	if det.WriteID == "" {
		det.WriteID = newConversationID()
	}
	return det, nil
}

func (d *deepchat) run(ctx context.Context, out io.Writer, prompt string) error {
	switch {
	case d.config.List:
		return d.listConversations(out)
	case d.config.Delete != "":
		return d.deleteConversation(out)
	case d.config.Show != "":
	default:
		if os.Getenv(d.config.APIKeyEnv) == "" {
			return userError{
				err:    fmt.Errorf("%s is not set", d.config.APIKeyEnv),
				reason: fmt.Sprintf(
					"You can grab one at %s and export it as %s.",
					"https://platform.deepseek.com",
					d.config.APIKeyEnv,
				),
			}
		}
	}

	dets, err := d.findCacheOpsDetails()
	if err != nil {
		return err
	}

	if d.config.Show != "" {
		return d.showConversation(out, dets.ReadID)
	}

	var history []proto.Message
	if dets.ReadID != "" && !d.config.NoCache {
		if err := d.cache.Read(dets.ReadID, &history); err != nil {
			log.Debug("could not load conversation", "id", dets.ReadID, "err", err)
		}
	}

	convo := proto.New(history...)
	sess := chat.NewSession(convo, d.client)
	if d.config.System != "" {
		if _, err := sess.System(d.config.System); err != nil {
			return userError{
				err:    err,
				reason: "A system prompt can only start a new conversation.",
			}
		}
	}

	model := d.config.resolveModel(d.config.Model)
	if d.config.NoStream {
		res, err := sess.Send(ctx, prompt, model)
		if err != nil {
			return reasonFor(err)
		}
		if res.Warning != "" {
			log.Warn(res.Warning)
		}
		fmt.Fprintln(out, res.Message.Content)
	} else {
		st, err := sess.Stream(ctx, prompt, model)
		if err != nil {
			return reasonFor(err)
		}
		defer st.Close() //nolint:errcheck
		var wrote bool
		for st.Next() {
			chunk, err := st.Current()
			if err != nil {
				continue
			}
			fmt.Fprint(out, chunk.Content)
			wrote = true
		}
		if err := st.Err(); err != nil {
			return reasonFor(err)
		}
		if wrote {
			fmt.Fprintln(out)
		}
	}

	if d.config.NoCache {
		return nil
	}
	title := dets.Title
	if title == "" {
		title = firstLine(prompt)
	}
	messages := convo.Snapshot()
	if err := d.cache.Write(dets.WriteID, &messages); err != nil {
		return userError{
			err:    err,
			reason: "Could not save the conversation.",
		}
	}
	if err := d.db.Save(dets.WriteID, title); err != nil {
		return userError{
			err:    err,
			reason: "Could not save the conversation.",
		}
	}
	return nil
}

func (d *deepchat) listConversations(out io.Writer) error {
	convos, err := d.db.List()
	if err != nil {
		return userError{
			err:    err,
			reason: "Could not list the conversations.",
		}
	}
	for _, convo := range convos {
		fmt.Fprintf(
			out,
			"%s\t%s\t%s\n",
			convo.ID[:convIDShort],
			convo.UpdatedAt.Format("2006-01-02 15:04:05"),
			convo.Title,
		)
	}
	return nil
}

func (d *deepchat) showConversation(out io.Writer, id string) error {
	var messages []proto.Message
	if err := d.cache.Read(id, &messages); err != nil {
		return userError{
			err:    err,
			reason: "Could not read the conversation.",
		}
	}
	fmt.Fprint(out, proto.Render(messages))
	return nil
}

func (d *deepchat) deleteConversation(out io.Writer) error {
	convo, err := d.db.Find(d.config.Delete)
	if err != nil {
		return userError{
			err:    err,
			reason: "Could not find the conversation to delete.",
		}
	}
	if err := d.db.Delete(convo.ID); err != nil {
		return userError{
			err:    err,
			reason: "Could not delete the conversation.",
		}
	}
	if err := d.cache.Delete(convo.ID); err != nil {
		log.Debug("could not delete conversation cache", "id", convo.ID, "err", err)
	}
	fmt.Fprintln(out, "Conversation deleted:", convo.ID[:convIDShort])
	return nil
}

// reasonFor maps API failures to messages a user can act on.
func reasonFor(err error) error {
	var upstream *deepseek.UpstreamError
	if errors.As(err, &upstream) {
		var reason string
		switch {
		case upstream.Status == 401:
			reason = "The API key is invalid."
		case upstream.Status == 402:
			reason = "Your account has insufficient balance."
		case upstream.Status == 404:
			reason = "The requested model does not exist."
		case upstream.Status == 429:
			reason = "You are being rate limited, try again later."
		case upstream.Status >= 500:
			reason = "The API is having trouble, try again later."
		default:
			reason = "The API rejected the request."
		}
		return userError{err: err, reason: reason}
	}
	if errors.Is(err, deepseek.ErrNoChoices) {
		return userError{err: err, reason: "The API returned no content."}
	}
	if errors.Is(err, context.Canceled) {
		return userError{err: err, reason: "Canceled."}
	}
	return err
}
