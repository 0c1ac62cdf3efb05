package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Infineon/whd-expansion/internal/whd/driver"
	"github.com/Infineon/whd-expansion/internal/whd/whdtest"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	d, err := driver.New(driver.Config{
		Bus:         whdtest.NewBus(),
		BufferPool:  whdtest.NewBufferPool(),
		EventSource: whdtest.NewEventSource(),
		ChipID:      43012,
	})
	require.NoError(t, err)
	require.NoError(t, d.SetUp(context.Background()))

	_, err = d.AddInterface("wlan0", 0, 0, net.HardwareAddr{0, 1, 2, 3, 4, 5})
	require.NoError(t, err)

	return New(":0", d)
}

func TestHandleDriverReportsUpState(t *testing.T) {
	s := testServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/driver", nil)
	s.handleDriver(rr, req)

	require.Equal(t, 200, rr.Code)
	var out driverView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "up", out.State)
}

func TestHandleInterfacesListsAddedInterface(t *testing.T) {
	s := testServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/interfaces", nil)
	s.handleInterfaces(rr, req)

	require.Equal(t, 200, rr.Code)
	var out []interfaceView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "wlan0", out[0].Name)
	require.False(t, out[0].ReadyToTransceive)
}

func TestHandleConsoleReturnsEmptyWhenNoFirmwareOutput(t *testing.T) {
	s := testServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/console", nil)
	s.handleConsole(rr, req)

	require.Equal(t, 200, rr.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "", out["console"])
}

func TestHandleHealthz(t *testing.T) {
	s := testServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	s.handleHealthz(rr, req)

	require.Equal(t, 200, rr.Code)
}
