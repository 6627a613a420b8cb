package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tutorhub/core"
)

type person struct{}

func (person) PersonID() string    { return "42" }
func (person) PersonName() string  { return "ops" }
func (person) PersonEmail() string { return "ops@tutorhub.test" }

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST", Debug: true})

	logger.Error("provisioning run failed", errors.New("connection refused"), person{}, map[string]interface{}{"mode": "invite"})
	assert.Equal(t, "provisioning run failed\nconnection refused\nmap[mode:invite]\n", buf.String())

	args := logger.prepare("msg", []interface{}{person{}, "extra"})
	assert.Equal(t, []interface{}{"msg", "extra"}, args)
}
