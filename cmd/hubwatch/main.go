package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/anonto42/nano-midea/memberhub/pkg/client"
	"github.com/anonto42/nano-midea/memberhub/pkg/config"
	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/reconcile"
)

const HubWatchVersion = "0.1.0"

func main() {
	usage := `Member hub watcher.

Connection settings default to HUB_API_URL, HUB_WS_URL, HUB_TOKEN,
HUB_USER_ID and HUB_USER_NAME.

Usage:
    hubwatch feed [options] [--kind=<kind>] [--limit=<limit>]
    hubwatch item [options] <item_id>
    hubwatch like [options] <item_id> [<reply_id>]
    hubwatch reply [options] <item_id> <content> [--to=<reply_id>]
    hubwatch post [options] <content> [--kind=<kind>] [--title=<title>]

Options:
    -h --help              Show this screen.
    --version              Show version.
    --api_url=<api_url>    API base url.
    --ws_url=<ws_url>      Push endpoint url.
    --token=<token>        Bearer token.
    --user_id=<user_id>    Your member id.
    --kind=<kind>          thread or story.
    --limit=<limit>        Items to load [default: 20].
    --to=<reply_id>        Reply being answered.
    --title=<title>        Item title.
    --verbosity=<level>    Log verbosity [default: 0].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], HubWatchVersion)
	if err != nil {
		panic(err)
	}

	level, _ := opts.String("--verbosity")
	flag.Set("logtostderr", "true")
	flag.Set("v", level)
	defer glog.Flush()

	config.LoadEnv()
	cfg := config.LoadClient()
	if v, _ := opts.String("--api_url"); v != "" {
		cfg.APIURL = v
	}
	if v, _ := opts.String("--ws_url"); v != "" {
		cfg.WSURL = v
	}
	if v, _ := opts.String("--token"); v != "" {
		cfg.Token = v
	}
	if v, _ := opts.String("--user_id"); v != "" {
		cfg.UserID = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if feed_, _ := opts.Bool("feed"); feed_ {
		err = watchFeed(ctx, cfg, opts)
	} else if item_, _ := opts.Bool("item"); item_ {
		err = watchItem(ctx, cfg, opts)
	} else if like_, _ := opts.Bool("like"); like_ {
		err = like(ctx, cfg, opts)
	} else if reply_, _ := opts.Bool("reply"); reply_ {
		err = reply(ctx, cfg, opts)
	} else if post_, _ := opts.Bool("post"); post_ {
		err = post(ctx, cfg, opts)
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

// session wires a Session to the API and, when live is set, to the push endpoint.
// changed receives a signal after every reconciled event.
func session(ctx context.Context, cfg *config.ClientConfig, live bool) (s *client.Session, changed <-chan struct{}, closeFn func()) {
	api := client.NewHTTPClient(cfg.APIURL, cfg.Token, nil)
	notify := make(chan struct{}, 1)
	sessionConfig := client.SessionConfig{
		UserID:   cfg.UserID,
		UserName: cfg.UserName,
		Notifier: client.NotifierFunc(func(err error) {
			fmt.Fprintf(os.Stderr, "! %s\n", err)
		}),
		OnOpenItemRemoved: func(itemID string) {
			fmt.Printf("item %s was deleted\n", itemID)
		},
		OnEvent: func(ev entity.Event, res reconcile.Result) {
			glog.V(1).Infof("[watch]%s %s %s\n", ev.Type, ev.ItemID, res.Kind)
			select {
			case notify <- struct{}{}:
			default:
			}
		},
	}

	if !live {
		s = client.NewSession(ctx, api, nil, sessionConfig)
		return s, notify, s.Close
	}
	sub := client.NewSubscriber(ctx, cfg.WSURL, cfg.Token, nil)
	s = client.NewSession(ctx, api, sub, sessionConfig)
	return s, notify, func() {
		s.Close()
		sub.Close()
	}
}

func watchFeed(ctx context.Context, cfg *config.ClientConfig, opts docopt.Opts) error {
	s, changed, closeFn := session(ctx, cfg, true)
	defer closeFn()

	filter := entity.ListFilter{}
	filter.Kind, _ = opts.String("--kind")
	if limit, _ := opts.String("--limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return fmt.Errorf("bad --limit %q", limit)
		}
		filter.Limit = n
	}

	return s.WithRoom(ctx, entity.FeedRoom, func(ctx context.Context) error {
		if _, err := s.LoadItems(ctx, filter); err != nil {
			return err
		}
		for {
			renderFeed(os.Stdout, s.Items(), cfg.UserID)
			fmt.Println()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
			}
		}
	})
}

func watchItem(ctx context.Context, cfg *config.ClientConfig, opts docopt.Opts) error {
	s, changed, closeFn := session(ctx, cfg, true)
	defer closeFn()

	itemID, _ := opts.String("<item_id>")
	return s.ViewItem(ctx, itemID, func(ctx context.Context, _ entity.Item) error {
		for {
			it, ok := s.Item(itemID)
			if !ok {
				return nil
			}
			renderItem(os.Stdout, it, s.Tree(itemID), cfg.UserID)
			fmt.Println()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
			}
		}
	})
}

func like(ctx context.Context, cfg *config.ClientConfig, opts docopt.Opts) error {
	s, _, closeFn := session(ctx, cfg, false)
	defer closeFn()

	itemID, _ := opts.String("<item_id>")
	it, err := s.OpenItem(ctx, itemID)
	if err != nil {
		return err
	}
	if replyID, _ := opts.String("<reply_id>"); replyID != "" {
		err = s.LikeReply(ctx, itemID, replyID)
	} else {
		err = s.Like(ctx, itemID)
	}
	if err != nil {
		return err
	}
	if it, ok := s.Item(it.ID); ok {
		renderItem(os.Stdout, it, s.Tree(it.ID), cfg.UserID)
	}
	return nil
}

func reply(ctx context.Context, cfg *config.ClientConfig, opts docopt.Opts) error {
	s, _, closeFn := session(ctx, cfg, false)
	defer closeFn()

	itemID, _ := opts.String("<item_id>")
	content, _ := opts.String("<content>")
	to, _ := opts.String("--to")

	if _, err := s.OpenItem(ctx, itemID); err != nil {
		return err
	}
	if _, err := s.Comment(ctx, itemID, to, content); err != nil {
		return err
	}
	it, _ := s.Item(itemID)
	renderItem(os.Stdout, it, s.Tree(itemID), cfg.UserID)
	return nil
}

func post(ctx context.Context, cfg *config.ClientConfig, opts docopt.Opts) error {
	s, _, closeFn := session(ctx, cfg, false)
	defer closeFn()

	req := entity.CreateItemRequest{Kind: entity.KindThread}
	req.Content, _ = opts.String("<content>")
	req.Title, _ = opts.String("--title")
	if kind, _ := opts.String("--kind"); kind != "" {
		req.Kind = kind
	}
	it, err := s.CreateItem(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(it.ID)
	return nil
}
