package instance

import (
	"github.com/wavechat/gateway/internal/svc/auth"
	"github.com/wavechat/gateway/internal/svc/events"
	"github.com/wavechat/gateway/internal/svc/limiter"
	"github.com/wavechat/gateway/internal/svc/presences"
	"github.com/wavechat/gateway/internal/svc/redis"
	"github.com/wavechat/gateway/internal/svc/snowflake"
	"github.com/wavechat/gateway/internal/svc/store"
	"github.com/wavechat/gateway/internal/svc/voice"
)

type Instances struct {
	Redis      redis.Instance
	Store      store.Instance
	Events     events.Instance
	Presences  presences.Instance
	Voice      voice.Instance
	Limiter    limiter.Instance
	Snowflake  snowflake.Instance
	Auth       auth.Authorizer
	Prometheus Prometheus
}
