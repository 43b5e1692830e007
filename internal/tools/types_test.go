package tools

import (
	"errors"
	"testing"
)

func TestParseToolType(t *testing.T) {
	cases := []struct {
		in      string
		want    ToolType
		wantErr bool
	}{
		{in: "merge", want: ToolMerge},
		{in: "COMPRESS", want: ToolCompress},
		{in: " reduce ", want: ToolReduce},
		{in: "convert", want: ToolConvert},
		{in: "split", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseToolType(tc.in)
		if tc.wantErr {
			var terr *Error
			if !errors.As(err, &terr) || terr.Code != "INVALID_INPUT" {
				t.Fatalf("ParseToolType(%q): expected INVALID_INPUT, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseToolType(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseToolType(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeQualityDefaultsToMedium(t *testing.T) {
	got, err := NormalizeQuality(ToolCompress, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != QualityMedium {
		t.Fatalf("expected medium, got %s", got)
	}
}

func TestNormalizeQualityRejectsUnknownLevel(t *testing.T) {
	_, err := NormalizeQuality(ToolReduce, Quality("extreme"))
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestNormalizeQualityRejectsQualityForMerge(t *testing.T) {
	_, err := NormalizeQuality(ToolMerge, QualityHigh)
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestNormalizeQualityIsCaseInsensitive(t *testing.T) {
	got, err := NormalizeQuality(ToolReduce, Quality("HIGH"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != QualityHigh {
		t.Fatalf("expected high, got %s", got)
	}
}

func TestQualitySettingsTable(t *testing.T) {
	cases := []struct {
		quality Quality
		jpegQ   int
	}{
		{QualityLow, 95},
		{QualityMedium, 85},
		{QualityHigh, 70},
	}
	for _, tc := range cases {
		s := settingFor(tc.quality)
		if s.JPEGQuality != tc.jpegQ {
			t.Fatalf("settingFor(%s).JPEGQuality = %d, want %d", tc.quality, s.JPEGQuality, tc.jpegQ)
		}
		if !s.Optimize {
			t.Fatalf("settingFor(%s).Optimize should be enabled", tc.quality)
		}
	}
}

func TestRequiresSingleInput(t *testing.T) {
	if !RequiresSingleInput(ToolReduce) {
		t.Fatal("reduce should require a single input")
	}
	for _, tool := range []ToolType{ToolMerge, ToolCompress, ToolConvert} {
		if RequiresSingleInput(tool) {
			t.Fatalf("%s should accept multiple inputs", tool)
		}
	}
}
