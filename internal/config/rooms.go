package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/Yengas/go-chat-server/internal/room_manager"
)

// LoadRoomsFile reads the room seed file: an ordered JSON array of records
// with a required name and an optional description. A parse failure or a
// duplicate name is a boot error.
func LoadRoomsFile(path string) ([]room_manager.ChatRoomMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms file %s: %w", path, err)
	}

	var metadatas []room_manager.ChatRoomMetadata
	if err := json.Unmarshal(data, &metadatas); err != nil {
		return nil, fmt.Errorf("parse rooms file %s: %w", path, err)
	}
	if len(metadatas) == 0 {
		return nil, fmt.Errorf("rooms file %s defines no rooms", path)
	}

	validate := validator.New()
	seen := make(map[string]struct{}, len(metadatas))
	for i, metadata := range metadatas {
		if err := validate.Struct(metadata); err != nil {
			return nil, fmt.Errorf("rooms file %s entry %d: %w", path, i, err)
		}
		if _, dup := seen[metadata.Name]; dup {
			return nil, fmt.Errorf("rooms file %s: duplicate room name %q", path, metadata.Name)
		}
		seen[metadata.Name] = struct{}{}
	}

	return metadatas, nil
}
