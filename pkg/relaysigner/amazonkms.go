package relaysigner

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kms_types "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go/aws"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	secp256k1N     = ethcrypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Div(secp256k1N, big.NewInt(2))

	// KMS_TIMEOUT bounds every KMS request.
	KMS_TIMEOUT               = time.Second * 15
	MINIMUM_KMS_PUBKEY_LENGTH = 65
)

// The ASN.1 structure for an ECDSA signature produced by AWS KMS.
type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

// The ASN.1 SubjectPublicKeyInfo returned by GetPublicKey.
type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// kmsAPI is the subset of *kms.Client the signer needs.
type kmsAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// getRegionFromArn returns field 3 of arn:partition:service:region:account-id:resource.
func getRegionFromArn(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) < 6 || parts[0] != "arn" {
		return ""
	}
	return parts[3]
}

// AmazonKms signs with an ECC_SECG_P256K1 key held in AWS KMS. The URI is amazonkms://<key-arn>.
type AmazonKms struct {
	keyId     string
	publicKey ecdsa.PublicKey
	client    kmsAPI
}

// NewAmazonKmsSigner creates a KMS client in the region of the key ARN and fetches the public
// key once; it is not expected to change at runtime.
func NewAmazonKmsSigner(ctx context.Context, unsafeDevMode bool, keyPath string) (*AmazonKms, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, KMS_TIMEOUT)
	defer cancel()

	region := getRegionFromArn(keyPath)
	if region == "" {
		return nil, errors.New("invalid KMS ARN")
	}

	// The default region must match the ARN or the SDK rejects the key id.
	cfg, err := config.LoadDefaultConfig(timeoutCtx, config.WithDefaultRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load KMS default config: %w", err)
	}

	return newAmazonKms(timeoutCtx, kms.NewFromConfig(cfg), keyPath)
}

func newAmazonKms(ctx context.Context, client kmsAPI, keyId string) (*AmazonKms, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyId),
	})
	if err != nil {
		return nil, fmt.Errorf("KMS signer creation failed: %w", err)
	}

	pub, err := parseKmsPublicKey(out.PublicKey)
	if err != nil {
		return nil, err
	}
	return &AmazonKms{keyId: keyId, publicKey: pub, client: client}, nil
}

func parseKmsPublicKey(der []byte) (ecdsa.PublicKey, error) {
	var spki asn1EcPublicKey
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return ecdsa.PublicKey{}, fmt.Errorf("failed to unmarshal KMS public key: %w", err)
	}

	raw := spki.PublicKey.Bytes
	if len(raw) < MINIMUM_KMS_PUBKEY_LENGTH || raw[0] != 0x04 {
		return ecdsa.PublicKey{}, errors.New("invalid KMS public key length")
	}

	// 0x04 ‖ X ‖ Y
	return ecdsa.PublicKey{
		Curve: ethcrypto.S256(),
		X:     new(big.Int).SetBytes(raw[1 : 1+32]),
		Y:     new(big.Int).SetBytes(raw[1+32 : 1+64]),
	}, nil
}

func (a *AmazonKms) Sign(ctx context.Context, hash []byte) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, KMS_TIMEOUT)
	defer cancel()

	res, err := a.client.Sign(timeoutCtx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          hash,
		SigningAlgorithm: kms_types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      kms_types.MessageTypeDigest,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS signing failed: %w", err)
	}

	r, s, err := derSignatureToRS(res.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}

	// Ethereum only accepts the low-s form.
	sInt := new(big.Int).SetBytes(s)
	if sInt.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, sInt).Bytes()
	}

	rs := make([]byte, 0, 64)
	rs = append(rs, adjustBufferSize(r)...)
	rs = append(rs, adjustBufferSize(s)...)
	return recoverableSignature(rs, hash, &a.publicKey)
}

// recoverableSignature appends the recovery id under which rs recovers to pub. KMS does not
// report it, so both candidates are tried.
func recoverableSignature(rs []byte, hash []byte, pub *ecdsa.PublicKey) ([]byte, error) {
	want := ethcrypto.CompressPubkey(pub)
	for recid := byte(0); recid < 2; recid++ {
		sig := make([]byte, 0, 65)
		sig = append(sig, rs...)
		sig = append(sig, recid)
		recovered, err := ethcrypto.SigToPub(hash, sig)
		if err != nil {
			continue
		}
		if bytes.Equal(ethcrypto.CompressPubkey(recovered), want) {
			return sig, nil
		}
	}
	return nil, errors.New("failed to generate valid signature")
}

func (a *AmazonKms) PublicKey(ctx context.Context) ecdsa.PublicKey {
	return a.publicKey
}

func (a *AmazonKms) Verify(ctx context.Context, sig []byte, hash []byte) (bool, error) {
	return verifyWithKey(&a.publicKey, sig, hash)
}

func (a *AmazonKms) TypeAsString() string {
	return "amazonkms"
}

// derSignatureToRS splits a DER SEQUENCE { INTEGER r, INTEGER s }.
func derSignatureToRS(signature []byte) ([]byte, []byte, error) {
	var sig asn1EcSig
	if _, err := asn1.Unmarshal(signature, &sig); err != nil {
		return nil, nil, err
	}
	return sig.R.Bytes, sig.S.Bytes, nil
}

// adjustBufferSize keeps the low 32 bytes of b, left padding shorter input with zeros.
func adjustBufferSize(b []byte) []byte {
	length := len(b)
	if length == 32 {
		return b
	}
	if length > 32 {
		return b[length-32:]
	}
	tmp := make([]byte, 32)
	copy(tmp[32-length:], b)
	return tmp
}
