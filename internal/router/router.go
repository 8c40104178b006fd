package routes

import (
	"net/http"

	_ "github.com/oggyb/courier/internal/docs" // swagger docs
	"github.com/oggyb/courier/internal/response"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerHandler "github.com/swaggo/http-swagger"
)

type AppDeps struct {
	Home      HomeHandler
	Send      SendHandler
	Webhook   WebhookHandler
	Click     ClickHandler
	Query     QueryHandler
	Scheduler SchedulerHandler
	Accounts  AccountHandler
	Numbers   NumberHandler

	// Auth guards the operator endpoints: queries, accounts, number
	// validation and scheduler control.
	Auth func(http.Handler) http.Handler
}

type HomeHandler interface {
	Index(w http.ResponseWriter, r *http.Request)
	Health(w http.ResponseWriter, r *http.Request)
}

type SendHandler interface {
	SendEmail(w http.ResponseWriter, r *http.Request)
	SendSMS(w http.ResponseWriter, r *http.Request)
}

type WebhookHandler interface {
	Mandrill(w http.ResponseWriter, r *http.Request)
	MandrillHead(w http.ResponseWriter, r *http.Request)
	MessageBird(w http.ResponseWriter, r *http.Request)
	Test(w http.ResponseWriter, r *http.Request)
}

type ClickHandler interface {
	Redirect(w http.ResponseWriter, r *http.Request)
}

type QueryHandler interface {
	ListMessages(w http.ResponseWriter, r *http.Request)
	GetMessage(w http.ResponseWriter, r *http.Request)
	GetGroup(w http.ResponseWriter, r *http.Request)
	Stats(w http.ResponseWriter, r *http.Request)
	Billing(w http.ResponseWriter, r *http.Request)
}

type SchedulerHandler interface {
	StartStopScheduler(w http.ResponseWriter, r *http.Request)
}

type AccountHandler interface {
	CreateSubaccount(w http.ResponseWriter, r *http.Request)
	DeleteSubaccount(w http.ResponseWriter, r *http.Request)
}

type NumberHandler interface {
	ValidateSMS(w http.ResponseWriter, r *http.Request)
}

func Register(mux *http.ServeMux, d AppDeps) {
	mux.HandleFunc("GET /{$}", d.Home.Index)
	mux.HandleFunc("GET /health", d.Home.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Ingestion
	mux.HandleFunc("POST /send/email/{$}", d.Send.SendEmail)
	mux.HandleFunc("POST /send/sms/{$}", d.Send.SendSMS)

	// Provider callbacks
	mux.HandleFunc("POST /webhook/mandrill/{$}", d.Webhook.Mandrill)
	mux.HandleFunc("HEAD /webhook/mandrill/{$}", d.Webhook.MandrillHead)
	mux.HandleFunc("GET /webhook/messagebird/{$}", d.Webhook.MessageBird)
	mux.HandleFunc("POST /webhook/test/{$}", d.Webhook.Test)

	// Click tracking
	mux.HandleFunc("GET /l/{token}", d.Click.Redirect)

	auth := d.Auth
	if auth == nil {
		auth = func(h http.Handler) http.Handler { return h }
	}

	// Queries
	mux.Handle("GET /messages/{method}/{$}", auth(http.HandlerFunc(d.Query.ListMessages)))
	mux.Handle("GET /messages/{method}/{id}/{$}", auth(http.HandlerFunc(d.Query.GetMessage)))
	mux.Handle("GET /groups/{uuid}/{$}", auth(http.HandlerFunc(d.Query.GetGroup)))
	mux.Handle("GET /stats/{method}/{company}/{$}", auth(http.HandlerFunc(d.Query.Stats)))
	mux.Handle("GET /billing/{method}/{company}/{$}", auth(http.HandlerFunc(d.Query.Billing)))

	// Accounts
	mux.Handle("POST /create-subaccount/{method}/{$}", auth(http.HandlerFunc(d.Accounts.CreateSubaccount)))
	mux.Handle("POST /delete-subaccount/{method}/{$}", auth(http.HandlerFunc(d.Accounts.DeleteSubaccount)))
	mux.Handle("GET /validate/sms/{$}", auth(http.HandlerFunc(d.Numbers.ValidateSMS)))

	mux.Handle("POST /scheduler", auth(http.HandlerFunc(d.Scheduler.StartStopScheduler)))

	//Swagger
	mux.HandleFunc("GET /swagger/", swaggerHandler.WrapHandler)

	// Fallback handler for undefined routes (404)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.RespondError(w, http.StatusNotFound, "route not found")
	}))
}
