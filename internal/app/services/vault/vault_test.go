package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dalemusser/carexps/internal/app/system/cachekeys"
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/dalemusser/carexps/internal/app/system/phicrypt"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.uber.org/zap"
)

var errDown = errors.New("tier down")

type downBackend struct{}

func (downBackend) Name() string                                { return "down" }
func (downBackend) Get(context.Context, string) (string, error) { return "", errDown }
func (downBackend) Set(context.Context, string, string) error   { return errDown }
func (downBackend) Delete(context.Context, string) error        { return errDown }

// blackhole accepts writes and forgets them.
type blackhole struct{}

func (blackhole) Name() string                                { return "blackhole" }
func (blackhole) Get(context.Context, string) (string, error) { return "", kv.ErrNotFound }
func (blackhole) Set(context.Context, string, string) error   { return nil }
func (blackhole) Delete(context.Context, string) error        { return nil }

var (
	cipherOnce sync.Once
	testCipher *phicrypt.AEAD
)

func newCipher(t *testing.T) *phicrypt.AEAD {
	t.Helper()
	cipherOnce.Do(func() {
		c, err := phicrypt.New("vault-test-passphrase-123", "vault-test-salt")
		if err != nil {
			panic(err)
		}
		testCipher = c
	})
	return testCipher
}

type fixture struct {
	vault  *Vault
	remote *kv.Memory
	local  *kv.Memory
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	remote := kv.NewNamedMemory("remote")
	local := kv.NewNamedMemory("local")
	tiers := kv.NewTiers(zap.NewNop(), remote, kv.Prefixed(local, cachekeys.CredentialsPrefix))
	return fixture{
		vault:  New(newCipher(t), tiers, local, zap.NewNop(), opts),
		remote: remote,
		local:  local,
	}
}

func alice(password string) models.UserCredentials {
	return models.UserCredentials{Email: "alice@x.org", Password: password}
}

func TestVault_StoreRetrieve(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.vault.Store(ctx, "u1", alice("Secret1")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, err := f.vault.Retrieve(ctx, "u1")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got == nil || got.Email != "alice@x.org" || got.Password != "Secret1" {
		t.Fatalf("Retrieve() = %+v", got)
	}

	for name, b := range map[string]kv.Backend{"remote": f.remote, "local": kv.Prefixed(f.local, cachekeys.CredentialsPrefix)} {
		blob, err := b.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("%s tier missing blob: %v", name, err)
		}
		if !phicrypt.IsCiphertext(blob) || strings.Contains(blob, "Secret1") || strings.Contains(blob, "alice") {
			t.Errorf("%s tier holds readable data: %q", name, blob)
		}
	}
}

func TestVault_RetrieveNone(t *testing.T) {
	f := newFixture(t, Options{})

	got, err := f.vault.Retrieve(context.Background(), "nobody")
	if err != nil || got != nil {
		t.Errorf("Retrieve() = %+v, %v; want nil, nil", got, err)
	}
}

func TestVault_RetrieveFallsBackPastCorruptRemote(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.vault.Store(ctx, "u1", alice("Secret1")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	_ = f.remote.Set(ctx, "u1", "pc1:not-really-ciphertext")

	got, _ := f.vault.Retrieve(ctx, "u1")
	if got == nil || got.Password != "Secret1" {
		t.Errorf("Retrieve() = %+v, want local copy", got)
	}
}

func TestVault_StoreReplacesOldPassword(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_ = f.vault.Store(ctx, "u1", alice("Secret1"))
	if err := f.vault.Store(ctx, "u1", alice("NewSecret2")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if ok, _ := f.vault.VerifyPassword(ctx, "u1", "Secret1"); ok {
		t.Error("old password still verifies")
	}
	if ok, _ := f.vault.VerifyPassword(ctx, "u1", "NewSecret2"); !ok {
		t.Error("new password does not verify")
	}
}

func TestVault_StoreRemoteDown(t *testing.T) {
	local := kv.NewNamedMemory("local")
	tiers := kv.NewTiers(zap.NewNop(), downBackend{}, kv.Prefixed(local, cachekeys.CredentialsPrefix))
	v := New(newCipher(t), tiers, local, zap.NewNop(), Options{})
	ctx := context.Background()

	if err := v.Store(ctx, "u1", alice("Secret1")); err != nil {
		t.Fatalf("Store() with remote down error = %v", err)
	}
	if ok, _ := v.VerifyPassword(ctx, "u1", "Secret1"); !ok {
		t.Error("password not readable from local tier")
	}
}

func TestVault_StoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("every tier down", func(t *testing.T) {
		v := New(newCipher(t), kv.NewTiers(zap.NewNop(), downBackend{}, downBackend{}), kv.NewMemory(), zap.NewNop(), Options{})
		err := v.Store(ctx, "u1", alice("Secret1"))
		if !errors.Is(err, ErrCredentialStoreFailed) {
			t.Errorf("Store() error = %v, want ErrCredentialStoreFailed", err)
		}
		if errors.Is(err, ErrCredentialVerificationFailed) {
			t.Error("write failure should not be reported as verification failure")
		}
	})

	t.Run("write not readable", func(t *testing.T) {
		v := New(newCipher(t), kv.NewTiers(zap.NewNop(), blackhole{}), kv.NewMemory(), zap.NewNop(), Options{})
		err := v.Store(ctx, "u1", alice("Secret1"))
		if !errors.Is(err, ErrCredentialStoreFailed) || !errors.Is(err, ErrCredentialVerificationFailed) {
			t.Errorf("Store() error = %v, want store and verification failures", err)
		}
	})
}

func TestVault_Remove(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_ = f.vault.Store(ctx, "u1", alice("Secret1"))
	_ = f.local.Set(ctx, cachekeys.LoginStats("u1"), `{"loginAttempts":2}`)

	f.vault.Remove(ctx, "u1")

	if got, _ := f.vault.Retrieve(ctx, "u1"); got != nil {
		t.Errorf("Retrieve() after Remove = %+v", got)
	}
	if _, err := f.local.Get(ctx, cachekeys.LoginStats("u1")); !errors.Is(err, kv.ErrNotFound) {
		t.Error("login stats survived Remove")
	}
	if f.local.Len() != 0 || f.remote.Len() != 0 {
		t.Errorf("keys left behind: local=%d remote=%d", f.local.Len(), f.remote.Len())
	}
}

func TestVault_LegacyDoubleEncryption(t *testing.T) {
	ctx := context.Background()
	legacy := newFixture(t, Options{LegacyDoubleEncrypt: true})

	if err := legacy.vault.Store(ctx, "u1", alice("Secret1")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, _ := legacy.vault.Retrieve(ctx, "u1")
	if got == nil || got.Password != "Secret1" {
		t.Fatalf("Retrieve() of double-encrypted record = %+v", got)
	}
	if double, err := legacy.vault.IsDoubleEncrypted(ctx, "u1"); err != nil || !double {
		t.Fatalf("IsDoubleEncrypted() = %v, %v; want true", double, err)
	}

	repaired, err := legacy.vault.RepairDoubleEncrypted(ctx, "u1")
	if err != nil || !repaired {
		t.Fatalf("RepairDoubleEncrypted() = %v, %v; want true", repaired, err)
	}
	if double, _ := legacy.vault.IsDoubleEncrypted(ctx, "u1"); double {
		t.Error("record still double-encrypted after repair")
	}
	if ok, _ := legacy.vault.VerifyPassword(ctx, "u1", "Secret1"); !ok {
		t.Error("password changed by repair")
	}

	again, err := legacy.vault.RepairDoubleEncrypted(ctx, "u1")
	if err != nil || again {
		t.Errorf("second RepairDoubleEncrypted() = %v, %v; want false", again, err)
	}
}

func TestVault_SingleLayerByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_ = f.vault.Store(ctx, "u1", alice("Secret1"))

	if double, _ := f.vault.IsDoubleEncrypted(ctx, "u1"); double {
		t.Error("default Store produced a double-encrypted record")
	}
}

func TestVault_ConcurrentStoresSameUser(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := f.vault.Store(ctx, "u1", alice(fmt.Sprintf("Secret-%d", i))); err != nil {
				t.Errorf("Store(%d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := f.vault.Retrieve(ctx, "u1")
	if got == nil || !strings.HasPrefix(got.Password, "Secret-") {
		t.Fatalf("Retrieve() = %+v", got)
	}
	remoteBlob, _ := f.remote.Get(ctx, "u1")
	localBlob, _ := kv.Prefixed(f.local, cachekeys.CredentialsPrefix).Get(ctx, "u1")
	if remoteBlob != localBlob {
		t.Error("tiers diverged after concurrent stores")
	}
}
