package cacheredis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"serverstf/internal/domain/address"
	serrors "serverstf/internal/shared/errors"
)

// Kind distinguishes what a Notifier.Watch event refers to.
type Kind int

const (
	// KindServer means the event came from a server's own channel.
	KindServer Kind = iota
	// KindTag means the event came from a tag's channel.
	KindTag
)

const tagChannelPrefix = "serverstf/channels/tags/"

// Notifier owns a dedicated pub/sub connection. It starts in publish mode;
// the first Watch* call switches it permanently into watch mode, since
// go-redis pins a PubSub connection to subscription mode.
type Notifier struct {
	client *redis.Client
	log    *zap.Logger

	mu      sync.Mutex
	pubsub  *redis.PubSub
	watched bool
}

func newNotifier(client *redis.Client, log *zap.Logger) *Notifier {
	return &Notifier{client: client, log: log.Named("notifier")}
}

// NotifyServer publishes addr's canonical string form on its server channel.
func (n *Notifier) NotifyServer(ctx context.Context, addr address.Address) error {
	if err := n.assertPublishMode(); err != nil {
		return err
	}
	if err := n.client.Publish(ctx, ChannelServer(addr), addr.String()).Err(); err != nil {
		return serrors.NewCacheError("notifyServer", err)
	}
	return nil
}

// NotifyTag publishes addr's canonical string form on tag's channel.
func (n *Notifier) NotifyTag(ctx context.Context, tag string, addr address.Address) error {
	if err := n.assertPublishMode(); err != nil {
		return err
	}
	if err := n.client.Publish(ctx, ChannelTag(tag), addr.String()).Err(); err != nil {
		return serrors.NewCacheError("notifyTag", err)
	}
	return nil
}

func (n *Notifier) assertPublishMode() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.watched {
		return serrors.NewNotifierError("notifier is in watch mode and can no longer publish")
	}
	return nil
}

func (n *Notifier) enterWatchMode(ctx context.Context) *redis.PubSub {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.watched = true
	if n.pubsub == nil {
		n.pubsub = n.client.Subscribe(ctx)
	}
	return n.pubsub
}

// WatchServer subscribes to addr's server channel.
func (n *Notifier) WatchServer(ctx context.Context, addr address.Address) error {
	pubsub := n.enterWatchMode(ctx)
	if err := pubsub.Subscribe(ctx, ChannelServer(addr)); err != nil {
		return serrors.NewNotifierError(fmt.Sprintf("watch server %s: %v", addr, err))
	}
	return nil
}

// UnwatchServer unsubscribes from addr's server channel.
func (n *Notifier) UnwatchServer(ctx context.Context, addr address.Address) error {
	pubsub := n.enterWatchMode(ctx)
	if err := pubsub.Unsubscribe(ctx, ChannelServer(addr)); err != nil {
		return serrors.NewNotifierError(fmt.Sprintf("unwatch server %s: %v", addr, err))
	}
	return nil
}

// WatchTag subscribes to tag's channel.
func (n *Notifier) WatchTag(ctx context.Context, tag string) error {
	pubsub := n.enterWatchMode(ctx)
	if err := pubsub.Subscribe(ctx, ChannelTag(tag)); err != nil {
		return serrors.NewNotifierError(fmt.Sprintf("watch tag %s: %v", tag, err))
	}
	return nil
}

// UnwatchTag unsubscribes from tag's channel.
func (n *Notifier) UnwatchTag(ctx context.Context, tag string) error {
	pubsub := n.enterWatchMode(ctx)
	if err := pubsub.Unsubscribe(ctx, ChannelTag(tag)); err != nil {
		return serrors.NewNotifierError(fmt.Sprintf("unwatch tag %s: %v", tag, err))
	}
	return nil
}

// Watch blocks until any watched channel publishes, returning which kind
// of channel it was and the address carried by the payload.
func (n *Notifier) Watch(ctx context.Context) (Kind, address.Address, error) {
	pubsub := n.enterWatchMode(ctx)

	msg, err := pubsub.ReceiveMessage(ctx)
	if err != nil {
		return 0, address.Address{}, serrors.NewNotifierError(fmt.Sprintf("watch: %v", err))
	}

	addr, err := address.Parse(msg.Payload)
	if err != nil {
		return 0, address.Address{}, serrors.NewNotifierError(fmt.Sprintf("watch: malformed payload %q: %v", msg.Payload, err))
	}

	kind := KindServer
	if strings.HasPrefix(msg.Channel, tagChannelPrefix) {
		kind = KindTag
	}
	return kind, addr, nil
}

// Close releases the underlying pub/sub connection, if one was opened.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pubsub == nil {
		return nil
	}
	return n.pubsub.Close()
}
