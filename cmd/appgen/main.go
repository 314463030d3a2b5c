package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"learnapp/config"
	"learnapp/internal/ai"
	"learnapp/internal/cost"
	"learnapp/internal/logger"
	"learnapp/internal/models"
	"learnapp/internal/normalizer"
	"learnapp/internal/pipeline"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// genFlags 命令行参数，内容来源只能指定一个
type genFlags struct {
	topic    string
	text     string
	youtube  string
	weblink  string
	file     string
	guidance string
	out      string
}

// app 一次命令运行所需的依赖
type app struct {
	fs          afero.Fs
	normalizer  pipeline.Normalizer
	generator   ai.Generator
	pricing     *config.PricingConfig
	temperature float32
	logger      zerolog.Logger
	stdout      io.Writer
}

func newRootCmd() *cobra.Command {
	var flags genFlags
	cmd := &cobra.Command{
		Use:   "appgen",
		Short: "Generate an interactive learning app from a piece of content",
		Long:  `appgen turns a topic, text, YouTube video, web page or file into a learning app spec and a self-contained HTML page.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			log := logger.New(cfg.Server.Env)

			generator, err := ai.NewGenerator(cmd.Context(), &cfg.AI, log)
			if err != nil {
				return err
			}
			a := &app{
				fs:          afero.NewOsFs(),
				normalizer:  normalizer.New(&cfg.Normalizer, log),
				generator:   generator,
				pricing:     &cfg.Pricing,
				temperature: cfg.AI.Temperature,
				logger:      log,
				stdout:      cmd.OutOrStdout(),
			}
			return a.run(cmd.Context(), flags)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&flags.topic, "topic", "", "Learning topic")
	cmd.Flags().StringVar(&flags.text, "text", "", "Free-text description")
	cmd.Flags().StringVar(&flags.youtube, "youtube", "", "YouTube video URL")
	cmd.Flags().StringVar(&flags.weblink, "weblink", "", "Web page URL")
	cmd.Flags().StringVar(&flags.file, "file", "", "Path to a PDF, text or audio file")
	cmd.Flags().StringVarP(&flags.guidance, "guidance", "g", "", "Extra instructions for the generated app")
	cmd.Flags().StringVarP(&flags.out, "out", "o", ".", "Output directory")
	cmd.MarkFlagsMutuallyExclusive("topic", "text", "youtube", "weblink", "file")
	cmd.AddCommand(newArtifactsCmd(openMinio))
	return cmd
}

// basis 根据参数构造输入内容
func (a *app) basis(flags genFlags) (models.ContentBasis, error) {
	switch {
	case flags.topic != "":
		return models.TopicBasis{Topic: flags.topic}, nil
	case flags.text != "":
		return models.TextBasis{Description: flags.text}, nil
	case flags.youtube != "":
		return models.YouTubeBasis{URL: flags.youtube}, nil
	case flags.weblink != "":
		return models.WebLinkBasis{URL: flags.weblink}, nil
	case flags.file != "":
		data, err := afero.ReadFile(a.fs, flags.file)
		if err != nil {
			return nil, fmt.Errorf("读取文件失败: %w", err)
		}
		name := path.Base(flags.file)
		return models.FileBasis{
			Name:      name,
			MIMEType:  normalizer.SniffMIME(data),
			MediaKind: normalizer.DetectMediaKind(name, "", data),
			Data:      data,
		}, nil
	}
	return nil, errors.New("需要指定 --topic, --text, --youtube, --weblink 或 --file 之一")
}

func (a *app) run(ctx context.Context, flags genFlags) error {
	basis, err := a.basis(flags)
	if err != nil {
		return err
	}

	session := pipeline.NewSession(a.normalizer, a.generator, pipeline.Options{
		Temperature: a.temperature,
		Logger:      a.logger,
	})
	snap, err := session.Submit(ctx, pipeline.Submission{Basis: basis, UserGuidance: flags.guidance})
	for _, adv := range snap.Advisories {
		fmt.Fprintf(a.stdout, "注意: %s\n", adv.Message)
	}
	if err != nil {
		if snap.Spec != "" {
			if werr := a.write(flags.out, "spec.md", snap.Spec); werr != nil {
				a.logger.Warn().Err(werr).Msg("保存spec失败")
			}
		}
		return err
	}

	if err := a.write(flags.out, "spec.md", snap.Spec); err != nil {
		return err
	}
	if err := a.write(flags.out, "index.html", snap.Code); err != nil {
		return err
	}

	estimate, err := cost.Calculate(snap.Usage, a.pricing, snap.PricingKind)
	if err != nil {
		fmt.Fprintln(a.stdout, "费用: 无法估算")
		return nil
	}
	fmt.Fprintf(a.stdout, "费用: %s ($%.6f, %d tokens)\n",
		cost.FormatSatoshis(estimate.TotalCostSatoshis), estimate.TotalCostUSD, estimate.Details.TotalTokens)
	return nil
}

func (a *app) write(dir, name, content string) error {
	if err := a.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	p := path.Join(dir, name)
	if err := afero.WriteFile(a.fs, p, []byte(content), 0644); err != nil {
		return fmt.Errorf("写入%s失败: %w", name, err)
	}
	fmt.Fprintf(a.stdout, "已写入 %s\n", p)
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
