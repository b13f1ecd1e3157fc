package hash

import (
	"strings"
	"testing"
)

func TestNix32ToSRI(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "empty string digest",
			input: "0mdqa9w1p6cmli6976v4wi0sw9r4p5prkj7lzfd1877wk11c9c73",
			want:  "sha256-47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=",
		},
		{
			name:  "hello digest",
			input: "094qif9n4cq4fdg459qzbhg1c6wywawwaaivx0k0x8xhbyx4vwic",
			want:  "sha256-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=",
		},
		{
			name:  "sha256 prefix and newline",
			input: "sha256:094qif9n4cq4fdg459qzbhg1c6wywawwaaivx0k0x8xhbyx4vwic\n",
			want:  "sha256-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=",
		},
		{
			name:    "wrong length",
			input:   "094qif9n",
			wantErr: true,
		},
		{
			name:    "character outside alphabet",
			input:   "e94qif9n4cq4fdg459qzbhg1c6wywawwaaivx0k0x8xhbyx4vwic",
			wantErr: true,
		},
		{
			name:    "overflowing leading digit",
			input:   "z" + strings.Repeat("0", 51),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Nix32ToSRI(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Nix32ToSRI() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Nix32ToSRI(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSRIToNix32(t *testing.T) {
	got, err := SRIToNix32("sha256-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=")
	if err != nil {
		t.Fatalf("SRIToNix32() error = %v", err)
	}
	if want := "094qif9n4cq4fdg459qzbhg1c6wywawwaaivx0k0x8xhbyx4vwic"; got != want {
		t.Errorf("SRIToNix32() = %q, want %q", got, want)
	}

	if _, err := SRIToNix32("sha512-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ="); err == nil {
		t.Error("SRIToNix32() should reject non-sha256 hashes")
	}
}

func TestValidateSRI(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid sha256", "sha256-47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=", false},
		{"placeholder", DummySHA256, false},
		{"hex sha256", "sha256-e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", false},
		{"short digest", "sha256-AAAA", true},
		{"unknown algorithm", "md5-47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=", true},
		{"no dash", "sha256", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSRI(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSRI(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
