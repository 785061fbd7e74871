package domain

import "testing"

func TestCreateBatchRequestValidate(t *testing.T) {
	valid := CreateBatchRequest{
		SourceType: SourceTypeObjectStore,
		Input:      "scores/opus-12",
		Output:     "cutouts/opus-12",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := CreateBatchRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	missingOutput := CreateBatchRequest{
		SourceType: SourceTypeLocalDir,
		Input:      "/data/in",
	}
	if err := missingOutput.Validate(); err == nil {
		t.Fatal("expected validation error for missing output")
	}

	unsupportedSourceType := CreateBatchRequest{
		SourceType: "http_url",
		Input:      "a",
		Output:     "b",
	}
	if err := unsupportedSourceType.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported source_type")
	}

	negative := -4.0
	negativeRadius := CreateBatchRequest{
		SourceType: SourceTypeLocalDir,
		Input:      "a",
		Output:     "b",
		Radius:     &negative,
	}
	if err := negativeRadius.Validate(); err == nil {
		t.Fatal("expected validation error for negative radius")
	}
}

func TestCreateBatchRequestOptionsDefaults(t *testing.T) {
	opts := CreateBatchRequest{}.Options()
	if opts.Background != "white" || opts.Radius != 80 || opts.Extension != "png" {
		t.Fatalf("unexpected defaults: %+v", opts)
	}

	zero := 0.0
	opts = CreateBatchRequest{Background: "#102030", Radius: &zero, Extension: "webp"}.Options()
	if opts.Background != "#102030" || opts.Radius != 0 || opts.Extension != "webp" {
		t.Fatalf("explicit options were not kept: %+v", opts)
	}
}

func TestBoundingBoxSize(t *testing.T) {
	box := BoundingBox{X1: 10, Y1: 20, X2: 90, Y2: 50}
	if got := box.Size(); got != (Extent{W: 80, H: 30}) {
		t.Fatalf("expected 80x30, got %s", got)
	}
	if !(Extent{W: 0, H: 5}).Empty() {
		t.Fatal("expected 0x5 extent to be empty")
	}
}
