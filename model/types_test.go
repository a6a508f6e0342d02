package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBoxValidate(t *testing.T) {
	tests := []struct {
		name    string
		box     BoundingBox
		wantErr bool
	}{
		{"valid", BoundingBox{YMin: 0.1, XMin: 0.2, YMax: 0.5, XMax: 0.9}, false},
		{"full image", BoundingBox{YMin: 0, XMin: 0, YMax: 1, XMax: 1}, false},
		{"negative", BoundingBox{YMin: -0.1, XMin: 0, YMax: 0.5, XMax: 0.5}, true},
		{"out of range", BoundingBox{YMin: 0, XMin: 0, YMax: 1.5, XMax: 0.5}, true},
		{"empty", BoundingBox{YMin: 0.5, XMin: 0.2, YMax: 0.5, XMax: 0.9}, true},
		{"inverted", BoundingBox{YMin: 0.8, XMin: 0.2, YMax: 0.5, XMax: 0.9}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.box.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBoundingBoxUnmarshalJSON(t *testing.T) {
	var obj BoundingBox
	require.NoError(t, json.Unmarshal([]byte(`{"y_min":0.1,"x_min":0.2,"y_max":0.3,"x_max":0.4}`), &obj))
	assert.Equal(t, BoundingBox{YMin: 0.1, XMin: 0.2, YMax: 0.3, XMax: 0.4}, obj)

	var arr BoundingBox
	require.NoError(t, json.Unmarshal([]byte(`[0.1,0.2,0.3,0.4]`), &arr))
	assert.Equal(t, obj, arr)

	var bad BoundingBox
	assert.Error(t, json.Unmarshal([]byte(`[0.1,0.2]`), &bad))
}
