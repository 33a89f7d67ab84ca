// Package tool provides the retrieval collaborators used by the research and
// travel pipelines.
//
// Every source implements Retriever and returns Documents; an empty result is not
// an error. Web search is backed by Tavily or Brave, the knowledge base by
// Wikipedia, and WebFetch turns a single page into plain text.
//
//	web, err := tool.NewTavilySearch("")   // TAVILY_API_KEY
//	if err != nil {
//		return err
//	}
//	docs, err := web.Search(ctx, "multi-agent research pipelines")
//	context := tool.FormatDocuments(docs)
//
// The search types also implement the langchaingo tools.Tool interface, so they can
// be handed to langchaingo agents unchanged.
package tool
