package crypto

import (
	"errors"
	"regexp"
	"testing"

	"greentoken/internal/domain"
)

func baseInput() domain.ProjectFingerprintInput {
	return domain.ProjectFingerprintInput{
		Name:          "Test Mangrove",
		Location:      "Sundarbans, West Bengal",
		Latitude:      21.9497,
		Longitude:     89.1833,
		AreaHectares:  10,
		EcosystemType: "MANGROVE",
		OwnerID:       "user-1",
		DocumentHashes: []string{
			"bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
			"QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
			"QmT78zSuBmuS4z925WZfrqQ1qHaJ56DQaTfyMUF7F8ff5o",
		},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	in := baseInput()
	first, err := Fingerprint(in)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Fingerprint(in)
		if err != nil {
			t.Fatalf("fingerprint again: %v", err)
		}
		if again != first {
			t.Fatalf("expected stable digest, got %s vs %s", first, again)
		}
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(first) {
		t.Fatalf("expected lowercase hex sha256, got %q", first)
	}
}

func TestFingerprintDocumentOrderIndependent(t *testing.T) {
	in := baseInput()
	want, err := Fingerprint(in)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	reordered := baseInput()
	reordered.DocumentHashes = []string{
		in.DocumentHashes[2],
		in.DocumentHashes[0],
		in.DocumentHashes[1],
	}
	got, err := Fingerprint(reordered)
	if err != nil {
		t.Fatalf("fingerprint reordered: %v", err)
	}
	if got != want {
		t.Fatal("expected document order not to change the fingerprint")
	}

	duplicated := baseInput()
	duplicated.DocumentHashes = append(duplicated.DocumentHashes, in.DocumentHashes[1])
	got, err = Fingerprint(duplicated)
	if err != nil {
		t.Fatalf("fingerprint duplicated: %v", err)
	}
	if got != want {
		t.Fatal("expected duplicate document hashes to collapse")
	}
}

func TestCanonicalFingerprintExactBytes(t *testing.T) {
	in := domain.ProjectFingerprintInput{
		Name:           "Test Mangrove",
		Location:       "Pichavaram",
		Latitude:       11.4333,
		Longitude:      79.7833,
		AreaHectares:   10.5,
		EcosystemType:  "mangrove",
		OwnerID:        "owner-7",
		DocumentHashes: []string{"b", "a"},
	}
	got, err := CanonicalFingerprint(in)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	want := `{"areaHectares":10.5,"coordinates":[11.4333,79.7833],"documentHashes":["a","b"],` +
		`"ecosystemType":"MANGROVE","location":"Pichavaram","name":"Test Mangrove","ownerId":"owner-7",` +
		`"v":"greentoken.fingerprint.v1"}`
	if string(got) != want {
		t.Fatalf("canonical mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestFingerprintAvalanche(t *testing.T) {
	base, err := Fingerprint(baseInput())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	mutations := map[string]func(*domain.ProjectFingerprintInput){
		"area":      func(in *domain.ProjectFingerprintInput) { in.AreaHectares += 0.01 },
		"latitude":  func(in *domain.ProjectFingerprintInput) { in.Latitude += 0.0001 },
		"longitude": func(in *domain.ProjectFingerprintInput) { in.Longitude -= 0.0001 },
		"name":      func(in *domain.ProjectFingerprintInput) { in.Name += "s" },
		"location":  func(in *domain.ProjectFingerprintInput) { in.Location = "Sundarbans, West Bengal." },
		"owner":     func(in *domain.ProjectFingerprintInput) { in.OwnerID = "user-2" },
		"ecosystem": func(in *domain.ProjectFingerprintInput) { in.EcosystemType = "SEAGRASS" },
		"document":  func(in *domain.ProjectFingerprintInput) { in.DocumentHashes = in.DocumentHashes[:2] },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := baseInput()
			mutate(&in)
			got, err := Fingerprint(in)
			if err != nil {
				t.Fatalf("fingerprint: %v", err)
			}
			differing := 0
			for i := range got {
				if got[i] != base[i] {
					differing++
				}
			}
			if differing < len(base)/2 {
				t.Fatalf("expected >= 50%% of hex chars to differ, got %d/%d", differing, len(base))
			}
		})
	}
}

func TestFingerprintValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ProjectFingerprintInput)
		field  string
	}{
		{"missing name", func(in *domain.ProjectFingerprintInput) { in.Name = "  " }, "name"},
		{"missing location", func(in *domain.ProjectFingerprintInput) { in.Location = "" }, "location"},
		{"missing owner", func(in *domain.ProjectFingerprintInput) { in.OwnerID = "" }, "ownerId"},
		{"latitude range", func(in *domain.ProjectFingerprintInput) { in.Latitude = 91 }, "latitude"},
		{"longitude range", func(in *domain.ProjectFingerprintInput) { in.Longitude = -181 }, "longitude"},
		{"area too small", func(in *domain.ProjectFingerprintInput) { in.AreaHectares = 0 }, "areaHectares"},
		{"unknown ecosystem", func(in *domain.ProjectFingerprintInput) { in.EcosystemType = "DESERT" }, "ecosystemType"},
		{"empty document hash", func(in *domain.ProjectFingerprintInput) { in.DocumentHashes = []string{""} }, "documentHashes"},
		{"invalid utf-8 name", func(in *domain.ProjectFingerprintInput) { in.Name = "Test \xffMangrove" }, "name"},
		{"invalid utf-8 location", func(in *domain.ProjectFingerprintInput) { in.Location = "Sundarbans \xfe" }, "location"},
		{"invalid utf-8 document hash", func(in *domain.ProjectFingerprintInput) { in.DocumentHashes = []string{"a1", "\xc3"} }, "documentHashes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			_, err := Fingerprint(in)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}
