package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slw-proton/litellm-adpter-dify/internal/handler"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
)

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "工作流调试命令",
	}

	var query, modelName string
	run := &cobra.Command{
		Use:   "run",
		Short: "执行一次聊天工作流并输出结果",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp()
			if err != nil {
				return err
			}
			defer a.close()

			req := model.ChatRequest{
				Model:    modelName,
				Messages: []model.Message{{Role: model.RoleUser, Content: query}},
			}
			res, err := a.custom.Handle(cmd.Context(), handler.Call{Modality: handler.ModalityChat, Mode: handler.ModeSync, Chat: &req})
			if err != nil {
				return err
			}
			return printJSON(a.chat.Translator().ToOpenAI(res.Chat))
		},
	}
	run.Flags().StringVarP(&query, "query", "q", "", "查询内容")
	run.Flags().StringVar(&modelName, "model", "", "模型名")
	_ = run.MarkFlagRequired("query")

	cmd.AddCommand(run)
	return cmd
}

func newImageCmd() *cobra.Command {
	var req model.ImageRequest
	var format string
	cmd := &cobra.Command{
		Use:   "image",
		Short: "执行一次图片生成并输出结果",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp()
			if err != nil {
				return err
			}
			defer a.close()

			req.ResponseFormat = model.ImageFormat(format)
			res, err := a.custom.Handle(cmd.Context(), handler.Call{Modality: handler.ModalityImage, Mode: handler.ModeSync, Image: &req})
			if err != nil {
				return err
			}
			return printJSON(res.Image)
		},
	}
	cmd.Flags().StringVarP(&req.Prompt, "prompt", "p", "", "图片描述")
	cmd.Flags().StringVar(&req.Size, "size", model.DefaultImageSize, "图片尺寸 WxH")
	cmd.Flags().IntVar(&req.N, "n", model.DefaultImageCount, "图片数量")
	cmd.Flags().StringVar(&format, "format", string(model.DefaultImageFormat), "url 或 b64_json")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func setupApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
