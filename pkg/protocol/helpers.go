package protocol

import (
	"encoding/base64"
)

// NewAudioChunkMessage creates an audio_chunk message from raw PCM16 bytes.
func NewAudioChunkMessage(pcm []byte) (*Message, error) {
	return NewMessage(TypeAudioChunk, AudioChunkData{
		Data: base64.StdEncoding.EncodeToString(pcm),
	})
}

// NewTTSAudioMessage creates a tts_audio message from raw PCM16 bytes.
func NewTTSAudioMessage(pcm []byte) (*Message, error) {
	return NewMessage(TypeTTSAudio, TTSAudioData{
		Data: base64.StdEncoding.EncodeToString(pcm),
	})
}

// NewTranscriptMessage creates a transcript message.
func NewTranscriptMessage(text string, isFinal bool) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{Text: text, IsFinal: isFinal})
}

// NewSetStateMessage creates a set_state message.
func NewSetStateMessage(state State) (*Message, error) {
	return NewMessage(TypeSetState, SetStateData{State: state})
}

// NewErrorMessage creates an error message.
func NewErrorMessage(text string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: text})
}

// DecodePCM extracts the raw PCM16 bytes from an audio payload.
func DecodePCM(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

// AudioPCM decodes the PCM payload of an audio_chunk message.
func (m *Message) AudioPCM() ([]byte, error) {
	var data AudioChunkData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return DecodePCM(data.Data)
}

// TTSPCM decodes the PCM payload of a tts_audio message.
func (m *Message) TTSPCM() ([]byte, error) {
	var data TTSAudioData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return DecodePCM(data.Data)
}
