package ipfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCIDR(t *testing.T) {
	tests := []struct {
		name    string
		cidr    string
		wantErr bool
	}{
		{name: "class C network", cidr: "10.0.0.0/24"},
		{name: "single host", cidr: "192.168.1.1/32"},
		{name: "match everything", cidr: "0.0.0.0/0"},
		{name: "non-aligned base", cidr: "10.0.0.5/24"},
		{name: "prefix too large", cidr: "10.0.0.0/33", wantErr: true},
		{name: "negative prefix", cidr: "10.0.0.0/-1", wantErr: true},
		{name: "octet out of range", cidr: "999.0.0.0/8", wantErr: true},
		{name: "missing prefix", cidr: "10.0.0.0", wantErr: true},
		{name: "ipv6 range", cidr: "2001:db8::/32", wantErr: true},
		{name: "garbage", cidr: "not-a-cidr", wantErr: true},
		{name: "empty", cidr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCIDR(tt.cidr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCIDR)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCIDRContains(t *testing.T) {
	tests := []struct {
		name string
		cidr string
		ip   string
		want bool
	}{
		{name: "inside /24", cidr: "10.0.0.0/24", ip: "10.0.0.55", want: true},
		{name: "outside /24", cidr: "10.0.0.0/24", ip: "10.0.1.55", want: false},
		{name: "boundary low", cidr: "10.0.0.0/24", ip: "10.0.0.0", want: true},
		{name: "boundary high", cidr: "10.0.0.0/24", ip: "10.0.0.255", want: true},
		{name: "zero prefix matches anything", cidr: "0.0.0.0/0", ip: "203.0.113.7", want: true},
		{name: "host route exact", cidr: "192.168.1.1/32", ip: "192.168.1.1", want: true},
		{name: "host route near miss", cidr: "192.168.1.1/32", ip: "192.168.1.2", want: false},
		{name: "non-aligned base normalizes", cidr: "10.0.0.5/24", ip: "10.0.0.200", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := parseCIDR(tt.cidr)
			require.NoError(t, err)

			v4, ok := normalizeIPv4(tt.ip)
			require.True(t, ok)

			assert.Equal(t, tt.want, rng.contains(ipToUint32(v4)))
		})
	}
}

func TestNormalizeIPv4(t *testing.T) {
	t.Run("plain ipv4", func(t *testing.T) {
		v4, ok := normalizeIPv4("192.168.1.5")
		require.True(t, ok)
		assert.Equal(t, "192.168.1.5", v4.String())
	})

	t.Run("ipv4-mapped ipv6", func(t *testing.T) {
		v4, ok := normalizeIPv4("::ffff:203.0.113.7")
		require.True(t, ok)
		assert.Equal(t, "203.0.113.7", v4.String())
	})

	t.Run("plain ipv6 has no v4 form", func(t *testing.T) {
		_, ok := normalizeIPv4("2001:db8::1")
		assert.False(t, ok)
	})

	t.Run("garbage", func(t *testing.T) {
		_, ok := normalizeIPv4("not-an-ip")
		assert.False(t, ok)
	})
}
