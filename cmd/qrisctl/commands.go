package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tbourn/qriscuy/internal/emv"
	"github.com/tbourn/qriscuy/internal/fingerprint"
	"github.com/tbourn/qriscuy/internal/sysutil"
)

// secretEnv is read when --secret is not given.
const secretEnv = "HMAC_SECRET"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "qrisctl",
		Short:         "Inspect and fingerprint QRIS payloads offline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(crcCmd())
	root.AddCommand(parseCmd())
	root.AddCommand(signCmd())
	root.AddCommand(injectCmd())
	root.AddCommand(verifyCmd())
	return root
}

func crcCmd() *cobra.Command {
	var seal bool
	cmd := &cobra.Command{
		Use:   "crc [text]",
		Short: "Print the CRC16-CCITT checksum of text",
		Long: `Print the CRC16-CCITT (FALSE) checksum of text.

With --seal the argument is treated as a payload: any tag 63 is stripped and
the payload is printed again with a fresh checksum.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !seal {
				fmt.Fprintln(out, emv.Checksum(args[0]))
				return nil
			}
			body, err := emv.StripChecksum(args[0])
			if err != nil {
				return err
			}
			body += emv.TagCRC + "04"
			fmt.Fprintln(out, body+emv.Checksum(body))
			return nil
		},
	}
	cmd.Flags().BoolVar(&seal, "seal", false, "re-seal a payload with a fresh tag 63")
	return cmd
}

func parseCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse [payload]",
		Short: "Decode a payload into its TLV items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := emv.Parse(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TAG\tLEN\tVALUE")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", it.Tag, len(it.Value), it.Value)
				if it.Tag != emv.TagAdditionalData {
					continue
				}
				subs, err := emv.Parse(it.Value)
				if err != nil {
					continue
				}
				for _, s := range subs {
					fmt.Fprintf(tw, "  %s.%s\t%d\t%s\n", it.Tag, s.Tag, len(s.Value), s.Value)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print items as JSON")
	return cmd
}

func signCmd() *cobra.Command {
	var (
		secret, invoiceID, merchantID string
		amount                        int64
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a fresh fingerprint for an invoice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if invoiceID == "" || merchantID == "" {
				return errors.New("--invoice and --merchant are required")
			}
			s, err := fingerprint.NewSigner(resolveSecret(secret))
			if err != nil {
				return err
			}
			signed, err := s.Sign(invoiceID, merchantID, amount)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), emv.Tag62{
				FingerprintB64: signed.FingerprintB64,
				SignatureHex:   signed.SignatureHex,
				Timestamp:      signed.Timestamp,
				Nonce:          signed.Nonce,
				Algorithm:      fingerprint.Algorithm,
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC key (default $"+secretEnv+")")
	cmd.Flags().StringVar(&invoiceID, "invoice", "", "invoice id")
	cmd.Flags().StringVar(&merchantID, "merchant", "", "merchant id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in the smallest currency unit")
	return cmd
}

func injectCmd() *cobra.Command {
	var fp emv.Tag62
	cmd := &cobra.Command{
		Use:   "inject [base-payload]",
		Short: "Embed a fingerprint as tag 62 and re-seal the payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := emv.InjectFingerprint(args[0], fp)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), enc)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fp.FingerprintB64, "fingerprint", "", "fingerprint (sub-tag 01)")
	f.StringVar(&fp.SignatureHex, "signature", "", "signature hex (sub-tag 02)")
	f.Int64Var(&fp.Timestamp, "timestamp", 0, "unix seconds (sub-tag 03)")
	f.StringVar(&fp.Nonce, "nonce", "", "nonce (sub-tag 04)")
	f.StringVar(&fp.Algorithm, "algorithm", "", "algorithm id (sub-tag 05, optional)")
	return cmd
}

// verifyReport is printed by the verify command.
type verifyReport struct {
	CRCValid       bool       `json:"crc_valid"`
	Fingerprint    *emv.Tag62 `json:"fingerprint,omitempty"`
	SignatureValid *bool      `json:"signature_valid,omitempty"`
}

func verifyCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "verify [payload]",
		Short: "Check the checksum and, with a key, the tag 62 signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := args[0]
			var rep verifyReport
			crcErr := emv.VerifyChecksum(payload)
			rep.CRCValid = crcErr == nil

			if fp, err := emv.ExtractFingerprint(payload); err == nil {
				rep.Fingerprint = &fp
				if key := resolveSecret(secret); key != "" {
					s, err := fingerprint.NewSigner(key)
					if err != nil {
						return err
					}
					ok := fingerprint.Equal(fp.SignatureHex, s.Signature(fp.FingerprintB64))
					rep.SignatureValid = &ok
				}
			}
			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			switch {
			case crcErr != nil:
				return crcErr
			case rep.SignatureValid != nil && !*rep.SignatureValid:
				return errors.New("signature mismatch")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC key (default $"+secretEnv+")")
	return cmd
}

func resolveSecret(flag string) string {
	return strings.TrimSpace(sysutil.FirstNonEmpty(flag, os.Getenv(secretEnv)))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
