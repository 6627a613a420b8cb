// Package kratos provisions identities through the Ory Kratos admin API.
package kratos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	kratosclient "github.com/ory/kratos-client-go"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/core/provision"
)

const (
	invitationTemplate = "invitation"
	invitationSubject  = "Your account is ready"
)

type (
	Client struct {
		api      *kratosclient.APIClient
		schemaID string
		linkTTL  time.Duration
		mailer   core.EmailService
	}

	invitationData struct {
		Link      string
		ExpiresAt string
	}
)

var (
	_ provision.Provider = (*Client)(nil)
	_ provision.Lookuper = (*Client)(nil)
)

func NewClient(conf *core.Config, mailer core.EmailService, httpClient ...*http.Client) *Client {
	apiConf := kratosclient.NewConfiguration()
	apiConf.Servers = kratosclient.ServerConfigurations{{URL: conf.Identity.KratosAdminURL}}
	apiConf.HTTPClient = &http.Client{Timeout: conf.Identity.Timeout}
	if len(httpClient) > 0 && httpClient[0] != nil {
		apiConf.HTTPClient = httpClient[0]
	}
	apiConf.UserAgent = conf.AppName + "/" + conf.Build

	return &Client{
		api:      kratosclient.NewAPIClient(apiConf),
		schemaID: conf.Identity.SchemaID,
		linkTTL:  conf.Identity.RecoveryLinkTTL,
		mailer:   mailer,
	}
}

// InviteUser creates a password-less identity and emails it a recovery link to set its password.
func (c *Client) InviteUser(ctx context.Context, email string, meta provision.Metadata) error {
	identity, err := c.createIdentity(ctx, email, meta, nil)
	if err != nil {
		return err
	}

	body := kratosclient.NewCreateRecoveryLinkForIdentityBody(identity.Id)
	if c.linkTTL > 0 {
		expiresIn := c.linkTTL.String()
		body.ExpiresIn = &expiresIn
	}
	link, res, err := c.api.IdentityAPI.CreateRecoveryLinkForIdentity(ctx).
		CreateRecoveryLinkForIdentityBody(*body).
		Execute()
	if err != nil {
		return providerError(err, res, "creating recovery link")
	}

	expiresAt := time.Now().Add(c.linkTTL)
	if link.ExpiresAt != nil {
		expiresAt = *link.ExpiresAt
	}
	err = c.mailer.Send(ctx, &core.EmailMessage{
		To:           []mail.Address{{Address: email}},
		Subject:      invitationSubject,
		TemplateName: invitationTemplate,
		TemplateData: invitationData{
			Link:      link.RecoveryLink,
			ExpiresAt: expiresAt.UTC().Format(time.RFC1123),
		},
	})
	return errors.Wrap(err, "sending invitation")
}

// CreateUser creates an identity with a password credential and an already verified email address.
func (c *Client) CreateUser(ctx context.Context, email, password string, meta provision.Metadata) error {
	_, err := c.createIdentity(ctx, email, meta, &password)
	return err
}

func (c *Client) LookupUserByEmail(ctx context.Context, email string) (bool, error) {
	identities, res, err := c.api.IdentityAPI.ListIdentities(ctx).
		CredentialsIdentifier(email).
		Execute()
	if err != nil {
		return false, providerError(err, res, "looking up identity")
	}
	return len(identities) > 0, nil
}

func (c *Client) createIdentity(ctx context.Context, email string, meta provision.Metadata, password *string) (*kratosclient.Identity, error) {
	body := kratosclient.NewCreateIdentityBody(c.schemaID, map[string]interface{}{"email": email})
	body.MetadataPublic = meta

	if password != nil {
		body.Credentials = &kratosclient.IdentityWithCredentials{
			Password: &kratosclient.IdentityWithCredentialsPassword{
				Config: &kratosclient.IdentityWithCredentialsPasswordConfig{Password: password},
			},
		}
		body.VerifiableAddresses = []kratosclient.VerifiableIdentityAddress{
			*kratosclient.NewVerifiableIdentityAddress("completed", email, true, "email"),
		}
	}

	identity, res, err := c.api.IdentityAPI.CreateIdentity(ctx).
		CreateIdentityBody(*body).
		Execute()
	if err != nil {
		return nil, providerError(err, res, "creating identity")
	}
	return identity, nil
}

// providerError turns a Kratos API error response into a *provision.ProviderError.
// Transport failures are returned wrapped as they are.
func providerError(err error, res *http.Response, action string) error {
	var apiErr *kratosclient.GenericOpenAPIError
	if !errors.As(err, &apiErr) || res == nil {
		return errors.Wrap(err, action)
	}
	return &provision.ProviderError{Status: res.StatusCode, Message: errorMessage(apiErr.Body(), apiErr.Error())}
}

// errorMessage reads the message of a Kratos JSON error body:
// {"error": {"code": 409, "status": "Conflict", "reason": "...", "message": "..."}}
// The reason is the most specific of the two and comes first.
func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
			Reason  string `json:"reason"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, msg := range []string{body.Error.Reason, body.Error.Message, body.Message} {
			if strings.TrimSpace(msg) != "" {
				return msg
			}
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return fmt.Sprintf("kratos: %s", fallback)
}
