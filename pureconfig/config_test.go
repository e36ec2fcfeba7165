package pureconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() map[string]string {
	return map[string]string{
		"portal":    "10.0.0.1",
		"api-token": "tok",
	}
}

func TestDecodeAppliesDefaults(t *testing.T) {
	cfg, err := Decode(validRaw())
	require.NoError(t, err)
	assert.Equal(t, ProtocolISCSI, cfg.Protocol)
	assert.Equal(t, HostModePerNode, cfg.HostMode)
	assert.Equal(t, "pve", cfg.ClusterName)
	assert.Equal(t, defaultDeviceTimeout, cfg.DeviceTimeout)
	assert.False(t, cfg.SSLVerify)
}

func TestDecodeWeaklyTypedStringInputs(t *testing.T) {
	raw := validRaw()
	raw["ssl-verify"] = "true"
	raw["device-timeout"] = "120"

	cfg, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, cfg.SSLVerify)
	assert.Equal(t, 120, cfg.DeviceTimeout)
}

func TestDecodeMissingPortalFails(t *testing.T) {
	raw := validRaw()
	delete(raw, "portal")
	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestDecodeRequiresTokenOrUserPass(t *testing.T) {
	raw := map[string]string{"portal": "10.0.0.1"}
	_, err := Decode(raw)
	assert.Error(t, err)

	raw["username"] = "admin"
	_, err = Decode(raw)
	assert.Error(t, err, "username without password is still incomplete")

	raw["password"] = "secret"
	_, err = Decode(raw)
	assert.NoError(t, err)
}

func TestDecodeRejectsUnknownProtocol(t *testing.T) {
	raw := validRaw()
	raw["protocol"] = "nvmeof"
	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownHostMode(t *testing.T) {
	raw := validRaw()
	raw["host-mode"] = "bogus"
	_, err := Decode(raw)
	assert.Error(t, err)
}

func TestDecodeDeviceTimeoutBounds(t *testing.T) {
	tests := []struct {
		name    string
		timeout string
		wantErr bool
	}{
		{"below minimum", "9", true},
		{"at minimum", "10", false},
		{"at maximum", "300", false},
		{"above maximum", "301", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			raw["device-timeout"] = tt.timeout
			_, err := Decode(raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateStandalone(t *testing.T) {
	cfg := Config{
		Portal:        "10.0.0.1",
		APIToken:      "tok",
		Protocol:      ProtocolFC,
		HostMode:      HostModeShared,
		DeviceTimeout: 60,
	}
	assert.NoError(t, cfg.Validate())
}
