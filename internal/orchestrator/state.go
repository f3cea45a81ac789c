package orchestrator

// State is one of the four orchestrator lifecycle states (spec §4.7):
// Idle -> Listening -> Thinking -> Speaking -> (Listening | Idle).
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateThinking   State = "thinking"
	StateSpeaking   State = "speaking"
)

// BargeInAction selects what happens when a sustained VoiceStart is
// detected while Thinking or Speaking (spec §4.7).
type BargeInAction string

const (
	BargeInPause  BargeInAction = "pause"
	BargeInCancel BargeInAction = "cancel"
	BargeInIgnore BargeInAction = "ignore"
)

func parseBargeInAction(s string) BargeInAction {
	switch BargeInAction(s) {
	case BargeInPause, BargeInIgnore:
		return BargeInAction(s)
	default:
		return BargeInCancel
	}
}
