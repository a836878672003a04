package gcp

import (
	"errors"
	"testing"
)

func TestResolveObjectStorageConfigFromEnv(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		emulator string
		want     ObjectStorageMode
		wantErr  ObjectStorageConfigErrorCode
	}{
		{name: "default", want: ObjectStorageModeGCS},
		{name: "explicit gcs ignores emulator", mode: "gcs", emulator: "http://fake-gcs:4443", want: ObjectStorageModeGCS},
		{name: "explicit emulator", mode: "gcs_emulator", emulator: "http://fake-gcs:4443", want: ObjectStorageModeGCSEmulator},
		{name: "emulator host implies emulator", emulator: "http://fake-gcs:4443", want: ObjectStorageModeGCSEmulator},
		{name: "invalid mode", mode: "local", wantErr: ObjectStorageConfigErrorInvalidMode},
		{name: "missing emulator host", mode: "gcs_emulator", wantErr: ObjectStorageConfigErrorMissingEmulatorHost},
		{name: "invalid emulator host", mode: "gcs_emulator", emulator: "fake-gcs:4443", wantErr: ObjectStorageConfigErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.emulator)

			cfg, err := ResolveObjectStorageConfigFromEnv()
			if tc.wantErr != "" {
				var cfgErr *ObjectStorageConfigError
				if !errors.As(err, &cfgErr) || cfgErr.Code != tc.wantErr {
					t.Fatalf("want error %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
			}
			if cfg.Mode != tc.want {
				t.Fatalf("mode: want=%q got=%q", tc.want, cfg.Mode)
			}
		})
	}
}
