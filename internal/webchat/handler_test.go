package webchat

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letsdeepchat/MedAppAuto/internal/assistant"
	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	"github.com/letsdeepchat/MedAppAuto/internal/dialogue"
	"github.com/letsdeepchat/MedAppAuto/internal/knowledge"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/internal/session"
)

var webchatNow = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

func webchatService(t *testing.T) *assistant.Service {
	t.Helper()
	week := make(map[string][]clinicdata.ScheduleWindow)
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		week[day] = []clinicdata.ScheduleWindow{
			{Start: "09:00", End: "17:00", Kind: "clinic", StartMin: 9 * 60, EndMin: 17 * 60},
		}
	}
	data := clinicdata.NewDataset(
		clinicdata.ClinicInfo{Name: "Downtown Medical Center"},
		[]clinicdata.AppointmentType{{Name: "General Consultation", DurationMinutes: 30, PriceCents: 15000}},
		[]*clinicdata.Doctor{{
			ID: "dr_a", Name: "Dr. Alice Chen", Specialty: "Family Medicine",
			AppointmentTypes: []string{"General Consultation"},
			Schedule:         week, Location: time.UTC,
		}},
	)

	now := func() time.Time { return webchatNow }
	eng := availability.NewEngine(data, schedule.NewMemoryStore(), nil,
		availability.WithClock(now))
	kb := knowledge.NewBase(nil)
	require.NoError(t, kb.Add(context.Background(), knowledge.DeriveEntries(data)))
	machine := dialogue.NewMachine(data, eng, kb, nil, dialogue.WithClock(now))
	registry := session.NewRegistry(nil, session.WithClock(now))
	return assistant.NewService(nil, machine, registry, eng, kb)
}

func dialWebchat(t *testing.T) *websocket.Conn {
	t.Helper()
	h := NewHandler(webchatService(t), nil, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) OutboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame OutboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestPingPong(t *testing.T) {
	conn := dialWebchat(t)

	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestMessageRoundTrip(t *testing.T) {
	conn := dialWebchat(t)

	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "message", Text: "hello"}))

	typing := readFrame(t, conn)
	assert.Equal(t, "typing", typing.Type)

	reply := readFrame(t, conn)
	assert.Equal(t, "message", reply.Type)
	assert.Contains(t, reply.Text, "Downtown Medical Center")
	require.NotEmpty(t, reply.SessionID)

	// Second message continues the same session without resending the id.
	require.NoError(t, conn.WriteJSON(InboundFrame{
		Type: "message",
		Text: "I'd like to book a general consultation",
	}))
	readFrame(t, conn) // typing
	next := readFrame(t, conn)
	assert.Equal(t, reply.SessionID, next.SessionID)
	assert.Equal(t, string(dialogue.StateCollectingDate), next.State)
}

func TestBlankMessagesIgnored(t *testing.T) {
	conn := dialWebchat(t)

	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "message", Text: "   "}))
	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "ping"}))

	// The blank message produced no frames; the first reply is the pong.
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestUnsupportedFrameType(t *testing.T) {
	conn := dialWebchat(t)

	require.NoError(t, conn.WriteJSON(InboundFrame{Type: "subscribe"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
}
