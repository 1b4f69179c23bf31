package linkurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "https URL", input: "https://shop.example.com/item/1"},
		{name: "http URL with port", input: "http://shop.example.com:8080/x"},
		{name: "surrounding whitespace", input: "  https://example.com  "},
		{name: "empty", input: "", wantErr: true},
		{name: "no scheme", input: "example.com/item", wantErr: true},
		{name: "ftp scheme", input: "ftp://example.com/file", wantErr: true},
		{name: "no host", input: "https:///path", wantErr: true},
		{name: "bad escape", input: "https://example.com/%zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, u)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, u.Hostname())
		})
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "https://www.Zara.com/item", want: "zara.com"},
		{input: "http://shop.example.com:8080/x", want: "shop.example.com"},
		{input: "https://WWW.example.com./", want: "example.com"},
		{input: "https://wwwshop.com/", want: "wwwshop.com"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			u, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Domain(u))
		})
	}
}
