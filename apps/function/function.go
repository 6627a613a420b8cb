// Package provisionfn runs provisioning as Google Cloud Functions: an HTTP function and a Pub/Sub CloudEvent function.
package provisionfn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorhub/apps/di"
	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/core/provision"
)

var (
	// mockable
	loadConfigFunc     = core.NewConfig
	buildContainerFunc = di.New
	stdout             = io.Writer(os.Stdout)
	stderr             = io.Writer(os.Stderr)

	setupOnce sync.Once
	conf      *core.Config
	logger    core.Logger
)

func init() {
	functions.HTTP("ProvisionHTTP", provisionHTTP)
	functions.CloudEvent("ProvisionPubSub", provisionPubSub)
}

// setup runs once per function instance.
func setup() {
	setupOnce.Do(func() {
		conf = loadConfigFunc()
		logger = di.NewLogger(conf, "FUNCTION : ")
		core.ParseEmailTemplates(conf, logger)
	})
}

type (
	// MessagePublishedData is the data of a google.cloud.pubsub.topic.v1.messagePublished event.
	MessagePublishedData struct {
		Message      PubSubMessage `json:"message"`
		Subscription string        `json:"subscription"`
	}

	PubSubMessage struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes,omitempty"`
		ID         string            `json:"messageId"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

// runJob provisions the slice req asks for and mails the report when asked to.
func runJob(ctx context.Context, req provision.Request) (provision.Run, error) {
	if err := req.Validate(); err != nil {
		return provision.Run{}, err
	}
	cfg, err := req.RunConfig()
	if err != nil {
		return provision.Run{}, err
	}

	setup()
	c, err := buildContainerFunc(ctx, conf, logger)
	if err != nil {
		return provision.Run{}, errors.Wrap(err, "setting up dependencies")
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	run, err := c.Provisioner(provision.WithOutput(stdout, stderr)).Run(ctx, cfg)
	c.Metrics.RecordRun(run)
	if url := conf.Metrics.PushgatewayURL; url != "" {
		if pErr := c.Metrics.Push(ctx, url, conf.Metrics.JobName); pErr != nil {
			logger.Warn(fmt.Sprintf("pushing metrics: %v", pErr), pErr)
		}
	}
	if err != nil {
		return run, err
	}

	if req.Report {
		if err = c.SendReport(ctx, run, req.Recipients(nil)...); err != nil {
			logger.Warn(fmt.Sprintf("sending run report: %v", err), err)
		}
	}
	return run, nil
}

func provisionHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: http.StatusText(http.StatusMethodNotAllowed)})
		return
	}

	var req provision.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	// runs to completion even if the client disconnects
	run, err := runJob(context.WithoutCancel(r.Context()), req)
	if err != nil {
		var vErr *core.ValidationError
		if errors.As(err, &vErr) || errors.Is(err, provision.ErrPrecheckUnsupported) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		logger.Error(fmt.Sprintf("provisioning: %v", err), err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// provisionPubSub runs the job the message data asks for; empty data means a full invite run.
// Invalid requests are dropped, other errors are returned so Pub/Sub can redeliver.
func provisionPubSub(ctx context.Context, e event.Event) error {
	setup()

	var msg MessagePublishedData
	if err := e.DataAs(&msg); err != nil {
		return errors.Wrap(err, "decoding event data")
	}

	var req provision.Request
	if len(msg.Message.Data) > 0 {
		if err := json.Unmarshal(msg.Message.Data, &req); err != nil {
			logger.Error(fmt.Sprintf("dropping message %s: malformed request: %v", msg.Message.ID, err), err)
			return nil
		}
	}

	run, err := runJob(ctx, req)
	if err != nil {
		var vErr *core.ValidationError
		if errors.As(err, &vErr) || errors.Is(err, provision.ErrPrecheckUnsupported) {
			logger.Error(fmt.Sprintf("dropping message %s: %v", msg.Message.ID, err), err)
			return nil
		}
		return errors.Wrapf(err, "message %s", msg.Message.ID)
	}
	logger.Info(fmt.Sprintf("message %s: run %s %s: %s", msg.Message.ID, run.ID, run.Status, run.Summary))
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
