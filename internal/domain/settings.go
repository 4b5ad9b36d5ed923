package domain

// LobbyType selects how waiting participants get admitted.
type LobbyType string

const (
	LobbyWaitForApproval  LobbyType = "WAIT_FOR_APPROVAL"
	LobbyWaitForModerator LobbyType = "WAIT_FOR_MODERATOR"
)

// TranscriberType selects the speech-to-text backend.
type TranscriberType string

const (
	TranscriberGoogle       TranscriberType = "GOOGLE"
	TranscriberOracleSpeech TranscriberType = "ORACLE_CLOUD_AI_SPEECH"
	TranscriberEghtWhisper  TranscriberType = "EGHT_WHISPER"
)

// MeetingSettings is the object sent back to the remote event source in
// answer to a settings provisioning request. All fields are optional; the
// remote side treats absent fields as platform defaults.
type MeetingSettings struct {
	AutoAudioRecording    *bool           `json:"autoAudioRecording,omitempty"`
	AutoTranscriptions    *bool           `json:"autoTranscriptions,omitempty"`
	AutoVideoRecording    *bool           `json:"autoVideoRecording,omitempty"`
	LobbyEnabled          *bool           `json:"lobbyEnabled,omitempty"`
	LobbyType             LobbyType       `json:"lobbyType,omitempty"`
	MaxOccupants          int             `json:"maxOccupants,omitempty"`
	OutboundPhoneNo       string          `json:"outboundPhoneNo,omitempty"`
	ParticipantsSoftLimit int             `json:"participantsSoftLimit,omitempty"`
	Passcode              string          `json:"passcode,omitempty"`
	TranscriberType       TranscriberType `json:"transcriberType,omitempty"`
	VisitorsEnabled       *bool           `json:"visitorsEnabled,omitempty"`
	VisitorsLive          *bool           `json:"visitorsLive,omitempty"`
}
