package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suscribo/paygate/internal/audit"
	"github.com/suscribo/paygate/internal/clock"
	"github.com/suscribo/paygate/internal/config"
	"github.com/suscribo/paygate/internal/gateway"
	dlocalgw "github.com/suscribo/paygate/internal/gateway/dlocal"
	stripegw "github.com/suscribo/paygate/internal/gateway/stripe"
	"github.com/suscribo/paygate/internal/logger"
	"github.com/suscribo/paygate/internal/order"
	orderdomain "github.com/suscribo/paygate/internal/order/domain"
	"github.com/suscribo/paygate/internal/paymethod"
	"github.com/suscribo/paygate/pkg/db"
	"github.com/suscribo/paygate/pkg/emailtoken"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	logger.Module,
	clock.Module,
	db.Module,
	gateway.Module,
	order.Module,
	paymethod.Module,
	audit.Module,
	fx.Provide(newEmailTokenCodec),
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func newEmailTokenCodec(cfg config.Config) (*emailtoken.Codec, error) {
	return emailtoken.NewCodec(cfg.EmailTokenKey)
}

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// dlocalGateway is the slice of the dLocal client the handlers consume.
type dlocalGateway interface {
	SubscriptionDetails(ctx context.Context, planID, subscriptionID string) (*dlocalgw.Subscription, error)
	ListExecutions(ctx context.Context, planID, subscriptionID string) ([]dlocalgw.Execution, error)
	CreatePlan(ctx context.Context, plan dlocalgw.Plan) (*dlocalgw.Plan, error)
}

// stripeGateway is the slice of the Stripe client the handlers consume.
type stripeGateway interface {
	FindCustomerByEmail(ctx context.Context, email string) (*stripegw.Customer, error)
	CreateSetupIntent(ctx context.Context, customerID string) (*stripegw.SetupIntent, error)
	GetSetupIntent(ctx context.Context, intentID string) (*stripegw.SetupIntent, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*stripegw.Customer, error)
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	orderSvc  orderdomain.Service
	resolver  *paymethod.Resolver
	dlocal    dlocalGateway
	stripe    stripeGateway
	auditSvc  *audit.Service
	tokens    *emailtoken.Codec
	timeClock clock.Clock
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	OrderSvc orderdomain.Service
	Resolver *paymethod.Resolver
	DLocal   *dlocalgw.Client
	Stripe   *stripegw.Client
	AuditSvc *audit.Service
	Tokens   *emailtoken.Codec
	Clock    clock.Clock
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("server"),
		orderSvc:  p.OrderSvc,
		resolver:  p.Resolver,
		dlocal:    p.DLocal,
		stripe:    p.Stripe,
		auditSvc:  p.AuditSvc,
		tokens:    p.Tokens,
		timeClock: p.Clock,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	methods := api.Group("/payment-methods/:token")
	{
		methods.GET("", s.GetPaymentMethod)
		methods.GET("/history", s.ListChangeHistory)
		methods.POST("/stripe/setup-intent", s.CreateStripeSetupIntent)
		methods.POST("/stripe/confirm", s.ConfirmStripeSetupIntent)
		methods.POST("/dlocal/plan", s.CreateDLocalPlan)
	}
}
