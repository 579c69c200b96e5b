package fields

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MachineIDSource selects how a fresh machineId is derived.
type MachineIDSource string

const (
	// SourceRandom hex-encodes 32 random bytes.
	SourceRandom MachineIDSource = "random"
	// SourceSHA256 hex-encodes the SHA-256 digest of a fresh UUID v4.
	SourceSHA256 MachineIDSource = "sha256"
)

// Generator synthesizes replacement identity values.
type Generator struct {
	MachineIDSource MachineIDSource
	SqmUpper        bool // upper-case the sqmId
	SqmBraces       bool // wrap the sqmId in {}

	// Rand overrides the entropy source; nil means crypto/rand.
	Rand io.Reader
}

// Generate returns a complete Set of fresh values. Session dates are the
// Unix epoch milliseconds of now.
func (g Generator) Generate(now time.Time) (Set, error) {
	machineID, err := g.machineID()
	if err != nil {
		return Set{}, err
	}
	deviceID, err := g.uuid()
	if err != nil {
		return Set{}, err
	}
	sqmID, err := g.uuid()
	if err != nil {
		return Set{}, err
	}
	if g.SqmUpper {
		sqmID = strings.ToUpper(sqmID)
	}
	if g.SqmBraces {
		sqmID = "{" + sqmID + "}"
	}
	serviceID, err := g.uuid()
	if err != nil {
		return Set{}, err
	}

	ms := now.UnixMilli()
	return NewSet(map[Name]Value{
		MachineID:          String(machineID),
		DeviceID:           String(deviceID),
		SqmID:              String(sqmID),
		ServiceMachineID:   String(serviceID),
		FirstSessionDate:   Int(ms),
		LastSessionDate:    Int(ms),
		CurrentSessionDate: Int(ms),
	}), nil
}

func (g Generator) reader() io.Reader {
	if g.Rand != nil {
		return g.Rand
	}
	return rand.Reader
}

func (g Generator) uuid() (string, error) {
	id, err := uuid.NewRandomFromReader(g.reader())
	if err != nil {
		return "", fmt.Errorf("generating uuid: %w", err)
	}
	return id.String(), nil
}

func (g Generator) machineID() (string, error) {
	switch g.MachineIDSource {
	case SourceSHA256:
		id, err := g.uuid()
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256([]byte(id))
		return hex.EncodeToString(sum[:]), nil
	case SourceRandom, "":
		buf := make([]byte, 32)
		if _, err := io.ReadFull(g.reader(), buf); err != nil {
			return "", fmt.Errorf("generating machine id: %w", err)
		}
		return hex.EncodeToString(buf), nil
	default:
		return "", fmt.Errorf("unknown machine id source %q", g.MachineIDSource)
	}
}
