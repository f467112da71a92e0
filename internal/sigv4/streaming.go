package sigv4

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const streamingAlgorithm = "AWS4-HMAC-SHA256-PAYLOAD"

var ErrInvalidRequestPayload = ErrInvalidPayloadHash

// DecodeStreamingPayload unwraps an aws-chunked, SigV4-signed request body
// into a plain io.Reader, verifying each chunk's signature against the
// rolling previous-signature chain before releasing its bytes. Non-
// streaming payloads pass through untouched. The caller must invoke the
// returned cleanup func once done reading.
func DecodeStreamingPayload(ctx context.Context, src io.Reader, auth RequestAuth, signingKey []byte, expectedDecodedLength int64) (io.Reader, func(), error) {
	if !IsStreamingPayload(auth.PayloadHash) {
		return src, func() {}, nil
	}
	if len(signingKey) == 0 {
		return nil, nil, ErrInvalidRequestPayload
	}

	spool, err := os.CreateTemp("", "simples3-chunked-body-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}

	decoder := &chunkedDecoder{
		reader:        bufio.NewReader(src),
		signingKey:    signingKey,
		auth:          auth,
		prevSignature: strings.ToLower(strings.TrimSpace(auth.Authorization.Signature)),
	}
	if len(decoder.prevSignature) != sha256.Size*2 {
		cleanup()
		return nil, nil, ErrInvalidRequestPayload
	}

	written, err := decoder.decodeInto(ctx, spool)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if expectedDecodedLength >= 0 && written != expectedDecodedLength {
		cleanup()
		return nil, nil, ErrInvalidRequestPayload
	}
	if _, err := decoder.reader.Peek(1); err != io.EOF {
		cleanup()
		return nil, nil, ErrInvalidRequestPayload
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, err
	}
	return spool, cleanup, nil
}

type chunkedDecoder struct {
	reader        *bufio.Reader
	signingKey    []byte
	auth          RequestAuth
	prevSignature string
}

// decodeInto reads chunks until the terminal zero-length chunk, writing
// verified payload bytes to dst and returning the total bytes written.
func (d *chunkedDecoder) decodeInto(ctx context.Context, dst io.Writer) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		size, signature, err := d.readHeader()
		if err != nil {
			return 0, err
		}
		data, err := d.readBody(size)
		if err != nil {
			return 0, err
		}
		if err := d.verifyChunk(data, signature); err != nil {
			return 0, err
		}
		if size == 0 {
			return written, nil
		}
		n, err := dst.Write(data)
		if err != nil {
			return 0, err
		}
		written += int64(n)
	}
}

func (d *chunkedDecoder) verifyChunk(data []byte, signature string) error {
	expected := SignatureHex(d.signingKey, d.stringToSign(data))
	if !VerifySignature(expected, signature) {
		return ErrSignatureMismatch
	}
	d.prevSignature = strings.ToLower(signature)
	return nil
}

func (d *chunkedDecoder) stringToSign(chunk []byte) string {
	cred := d.auth.Authorization.Credential
	scope := fmt.Sprintf("%s/%s/%s/%s", cred.Date, cred.Region, cred.Service, cred.Terminal)
	return strings.Join([]string{
		streamingAlgorithm,
		d.auth.RequestTime.UTC().Format(DateFormat),
		scope,
		d.prevSignature,
		hexDigest(nil),
		hexDigest(chunk),
	}, "\n")
}

// readHeader parses one "<hex-size>;chunk-signature=<sig>\r\n" line.
func (d *chunkedDecoder) readHeader() (size int64, signature string, err error) {
	line, err := d.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return 0, "", ErrInvalidRequestPayload
		}
		return 0, "", err
	}
	if !strings.HasSuffix(line, "\r\n") {
		return 0, "", ErrInvalidRequestPayload
	}
	line = strings.TrimSuffix(line, "\r\n")

	sizeField, sigField, ok := strings.Cut(line, ";")
	if !ok {
		return 0, "", ErrInvalidRequestPayload
	}
	size, err = strconv.ParseInt(sizeField, 16, 64)
	if err != nil || size < 0 {
		return 0, "", ErrInvalidRequestPayload
	}

	const sigPrefix = "chunk-signature="
	if !strings.HasPrefix(sigField, sigPrefix) {
		return 0, "", ErrInvalidRequestPayload
	}
	signature = strings.TrimSpace(strings.TrimPrefix(sigField, sigPrefix))
	if len(signature) != sha256.Size*2 {
		return 0, "", ErrInvalidRequestPayload
	}
	if _, err := hex.DecodeString(signature); err != nil {
		return 0, "", ErrInvalidRequestPayload
	}
	return size, signature, nil
}

// readBody reads exactly size bytes of chunk data plus its trailing CRLF.
func (d *chunkedDecoder) readBody(size int64) ([]byte, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(d.reader, data); err != nil {
		return nil, ErrInvalidRequestPayload
	}
	var crlf [2]byte
	if _, err := io.ReadFull(d.reader, crlf[:]); err != nil {
		return nil, ErrInvalidRequestPayload
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return nil, ErrInvalidRequestPayload
	}
	return data, nil
}

func hexDigest(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:])
}
